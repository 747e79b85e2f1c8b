package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestListCatalogs(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"b.cat", "a.csv", "sub/c.parquet", "sub/d.jsonl", "img.fits", ".cache/e.cat", "notes.md"} {
		touch(t, filepath.Join(root, p))
	}

	files, err := ListCatalogs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.csv"),
		filepath.Join(root, "b.cat"),
		filepath.Join(root, "sub/c.parquet"),
		filepath.Join(root, "sub/d.jsonl"),
	}, files)
}

func TestExpandInputs(t *testing.T) {
	root := t.TempDir()
	one := filepath.Join(root, "night/one.cat")
	two := filepath.Join(root, "night/two.cat")
	touch(t, one)
	touch(t, two)
	touch(t, filepath.Join(root, "frame.fits"))

	files, err := ExpandInputs([]string{two, filepath.Join(root, "night")})
	require.NoError(t, err)
	assert.Equal(t, []string{two, one}, files)

	_, err = ExpandInputs([]string{filepath.Join(root, "frame.fits")})
	assert.Error(t, err)
	_, err = ExpandInputs([]string{filepath.Join(root, "missing")})
	assert.Error(t, err)
}

func TestFirstExisting(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "x.cat")
	touch(t, p)
	assert.Equal(t, p, FirstExisting(filepath.Join(root, "nope"), p))
	assert.Empty(t, FirstExisting(filepath.Join(root, "nope")))
}
