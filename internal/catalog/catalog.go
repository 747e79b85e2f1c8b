// Package catalog reads source catalogs produced by an upstream detection
// step into star records. Every format is mapped onto the same fixed
// schema: position, flux and quality flag.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fitsalign/internal/star"
)

// Format identifies a catalog encoding.
type Format string

const (
	FormatSExtractor Format = "sextractor"
	FormatCSV        Format = "csv"
	FormatJSONL      Format = "jsonl"
	FormatParquet    Format = "parquet"
)

// Record is the on-disk row schema shared by the tabular formats.
type Record struct {
	X    float64 `json:"x" parquet:"x"`
	Y    float64 `json:"y" parquet:"y"`
	Flux float64 `json:"flux" parquet:"flux"`
	Flag int32   `json:"flag" parquet:"flag"`
}

func (r Record) star(id int) star.Star {
	return star.Star{ID: id, X: r.X, Y: r.Y, Flux: r.Flux, Flag: int(r.Flag)}
}

var extFormats = map[string]Format{
	".cat":     FormatSExtractor,
	".sex":     FormatSExtractor,
	".txt":     FormatSExtractor,
	".csv":     FormatCSV,
	".json":    FormatJSONL,
	".jsonl":   FormatJSONL,
	".parquet": FormatParquet,
}

// DetectFormat returns the format implied by the file extension.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extFormats[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported catalog format: %s (supported: .cat, .sex, .txt, .csv, .json, .jsonl, .parquet)", ext)
}

// IsCatalogFile reports whether path has a recognised catalog extension.
func IsCatalogFile(path string) bool {
	_, err := DetectFormat(path)
	return err == nil
}

// Load reads the catalog at path. Star IDs are the row positions in the
// file.
func Load(path string) ([]star.Star, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatParquet {
		stars, err := readParquetFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return stars, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	stars, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return stars, nil
}

// Read decodes a stream in one of the text formats.
func Read(r io.Reader, format Format) ([]star.Star, error) {
	switch format {
	case FormatSExtractor:
		return ReadSExtractor(r)
	case FormatCSV:
		return ReadCSV(r)
	case FormatJSONL:
		return ReadJSONL(r)
	default:
		return nil, fmt.Errorf("format %q cannot be read from a stream", format)
	}
}

