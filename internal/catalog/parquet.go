package catalog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"

	"fitsalign/internal/star"
)

const parquetBatch = 256

func readParquetFile(path string) ([]star.Star, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("parquet catalog opened", "path", path, "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Record](pf)
	defer reader.Close()

	stars := make([]star.Star, 0, pf.NumRows())
	rows := make([]Record, parquetBatch)
	for {
		n, err := reader.Read(rows)
		for _, r := range rows[:n] {
			stars = append(stars, r.star(len(stars)))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}
	return stars, nil
}

// WriteParquet stores stars as Record rows at path. Star IDs are not
// written; reading the file back assigns them from row order.
func WriteParquet(path string, stars []star.Star) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	rows := make([]Record, len(stars))
	for i, s := range stars {
		rows[i] = Record{X: s.X, Y: s.Y, Flux: s.Flux, Flag: int32(s.Flag)}
	}

	w := parquet.NewGenericWriter[Record](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}
