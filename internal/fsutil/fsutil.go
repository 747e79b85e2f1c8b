package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fitsalign/internal/catalog"
)

// ListCatalogs returns all catalog files under root in lexical order.
// Hidden directories are skipped.
func ListCatalogs(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if catalog.IsCatalogFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// ExpandInputs turns a mix of catalog files and directories into the list
// of catalog files to process. Duplicates are dropped, order is kept.
func ExpandInputs(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !catalog.IsCatalogFile(in) {
				return nil, fmt.Errorf("%s: not a catalog file", in)
			}
			add(in)
			continue
		}
		files, err := ListCatalogs(in)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
