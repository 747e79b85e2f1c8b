package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fitsalign/internal/imgcat"
	"fitsalign/internal/quad"
	"fitsalign/internal/star"
)

var (
	// ErrCatalogNotFound is returned when no snapshot exists for a name or
	// source.
	ErrCatalogNotFound = errors.New("catalog not found")
	// ErrAmbiguousCatalog is returned when a name matches snapshots of
	// several sources.
	ErrAmbiguousCatalog = errors.New("catalog name is ambiguous")
)

// Snapshot is the persisted state of an image catalog.
type Snapshot struct {
	Name      string
	Source    string
	StarCount int
	Level     int
	Area      star.Area
	MinDist   float64
	Quads     []quad.Quad
}

// SnapshotOf captures the current state of c.
func SnapshotOf(c *imgcat.Catalog) Snapshot {
	return Snapshot{
		Name:      c.Name(),
		Source:    c.Source(),
		StarCount: len(c.Stars()),
		Level:     c.Level(),
		Area:      c.Area(),
		MinDist:   c.MinDist(),
		Quads:     c.Quads(),
	}
}

// CatalogRecord summarises a stored snapshot.
type CatalogRecord struct {
	Name      string
	Source    string
	StarCount int
	QuadCount int
	Level     int
	Area      star.Area
	MinDist   float64
	UpdatedAt time.Time
}

// QuadRecord is a stored quad: member IDs in frame order and descriptor.
type QuadRecord struct {
	Seq   int
	Stars [4]int
	Hash  quad.Descriptor
}

// SaveCatalog replaces the stored snapshot of snap.Source in one
// transaction. Catalogs from different directories sharing a file stem are
// kept apart.
func (s *Store) SaveCatalog(snap Snapshot) (err error) {
	if s == nil {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	a := snap.Area
	if _, err = tx.Exec(`INSERT OR REPLACE INTO image_catalogs (source, name, star_count, quad_count, quad_level, x_min, x_max, y_min, y_max, min_dist, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);`,
		snap.Source, snap.Name, snap.StarCount, len(snap.Quads), snap.Level, a.XMin, a.XMax, a.YMin, a.YMax, snap.MinDist); err != nil {
		return fmt.Errorf("save catalog %s: %w", snap.Name, err)
	}
	if _, err = tx.Exec(`DELETE FROM catalog_quads WHERE catalog=?;`, snap.Source); err != nil {
		return fmt.Errorf("clear quads of %s: %w", snap.Name, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO catalog_quads (catalog, seq, star_a, star_b, star_c, star_d, xc, yc, xd, yd) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, q := range snap.Quads {
		h := q.Hash
		if _, err = stmt.Exec(snap.Source, i, q.Stars[0].ID, q.Stars[1].ID, q.Stars[2].ID, q.Stars[3].ID, h[0], h[1], h[2], h[3]); err != nil {
			return fmt.Errorf("save quad %d of %s: %w", i, snap.Name, err)
		}
	}
	return tx.Commit()
}

// resolveCatalog maps key, a source path or a file stem, to the source
// path of one stored snapshot.
func (s *Store) resolveCatalog(key string) (string, error) {
	rows, err := s.DB.Query(`SELECT source FROM image_catalogs WHERE source=? OR name=? ORDER BY source;`, key, key)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return "", err
		}
		if src == key {
			return src, nil
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(sources) {
	case 0:
		return "", fmt.Errorf("%s: %w", key, ErrCatalogNotFound)
	case 1:
		return sources[0], nil
	default:
		return "", fmt.Errorf("%s matches %v: %w", key, sources, ErrAmbiguousCatalog)
	}
}

// CatalogSummary returns the stored summary of a catalog given its source
// path, or its name when only one source has that name.
func (s *Store) CatalogSummary(key string) (CatalogRecord, error) {
	if s == nil {
		return CatalogRecord{}, errors.New("store not initialized")
	}
	source, err := s.resolveCatalog(key)
	if err != nil {
		return CatalogRecord{}, err
	}
	var rec CatalogRecord
	err = s.DB.QueryRow(`SELECT name, source, star_count, quad_count, quad_level, x_min, x_max, y_min, y_max, min_dist, updated_at FROM image_catalogs WHERE source=?;`, source).
		Scan(&rec.Name, &rec.Source, &rec.StarCount, &rec.QuadCount, &rec.Level,
			&rec.Area.XMin, &rec.Area.XMax, &rec.Area.YMin, &rec.Area.YMax, &rec.MinDist, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogRecord{}, fmt.Errorf("%s: %w", key, ErrCatalogNotFound)
	}
	return rec, err
}

// CatalogQuads returns the stored quads of a catalog in insertion order.
// key is resolved as in CatalogSummary.
func (s *Store) CatalogQuads(key string) ([]QuadRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	source, err := s.resolveCatalog(key)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(`SELECT seq, star_a, star_b, star_c, star_d, xc, yc, xd, yd FROM catalog_quads WHERE catalog=? ORDER BY seq;`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuadRecord
	for rows.Next() {
		var r QuadRecord
		if err := rows.Scan(&r.Seq, &r.Stars[0], &r.Stars[1], &r.Stars[2], &r.Stars[3], &r.Hash[0], &r.Hash[1], &r.Hash[2], &r.Hash[3]); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Catalogs lists every stored catalog summary ordered by name and source.
func (s *Store) Catalogs() ([]CatalogRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT name, source, star_count, quad_count, quad_level, x_min, x_max, y_min, y_max, min_dist, updated_at FROM image_catalogs ORDER BY name, source;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogRecord
	for rows.Next() {
		var rec CatalogRecord
		if err := rows.Scan(&rec.Name, &rec.Source, &rec.StarCount, &rec.QuadCount, &rec.Level,
			&rec.Area.XMin, &rec.Area.XMax, &rec.Area.YMin, &rec.Area.YMax, &rec.MinDist, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
