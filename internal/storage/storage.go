package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for jobs and catalog snapshots.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writers from several workers share one file.
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processing_jobs (
            id TEXT PRIMARY KEY,
            job_type TEXT NOT NULL,
            status TEXT NOT NULL,
            input_path TEXT,
            options_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS job_results (
            job_id TEXT,
            meta_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS image_catalogs (
            source TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            star_count INTEGER NOT NULL,
            quad_count INTEGER NOT NULL,
            quad_level INTEGER NOT NULL,
            x_min REAL, x_max REAL, y_min REAL, y_max REAL,
            min_dist REAL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS catalog_quads (
            catalog TEXT NOT NULL,
            seq INTEGER NOT NULL,
            star_a INTEGER, star_b INTEGER, star_c INTEGER, star_d INTEGER,
            xc REAL, yc REAL, xd REAL, yd REAL,
            PRIMARY KEY (catalog, seq)
        );`,
		`CREATE TABLE IF NOT EXISTS catalog_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            file_path TEXT NOT NULL,
            event_type TEXT NOT NULL,
            event_time TIMESTAMP NOT NULL,
            job_id TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_events_file_path ON catalog_events(file_path);`,
		`CREATE INDEX IF NOT EXISTS idx_image_catalogs_name ON image_catalogs(name);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// JobRecord captures persisted job info.
type JobRecord struct {
	ID          string
	JobType     string
	Status      string
	InputPath   string
	OptionsJSON string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RecordJobQueued inserts a pending job.
func (s *Store) RecordJobQueued(rec JobRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO processing_jobs (id, job_type, status, input_path, options_json) VALUES (?, ?, ?, ?, ?);`,
		rec.ID, rec.JobType, rec.Status, rec.InputPath, rec.OptionsJSON)
	return err
}

// RecordJobStart marks a job as running.
func (s *Store) RecordJobStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE processing_jobs SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordJobResult finalizes a job with status and meta.
func (s *Store) RecordJobResult(id string, status string, meta map[string]any, errMsg string) error {
	if s == nil {
		return nil
	}
	metaJSON, _ := json.Marshal(meta)
	_, err := s.DB.Exec(`UPDATE processing_jobs SET status=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`, status, errMsg, id)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO job_results (job_id, meta_json) VALUES (?, ?);`, id, string(metaJSON))
	return err
}

// RecentJobs returns the latest jobs up to limit.
func (s *Store) RecentJobs(limit int) ([]JobRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, job_type, status, input_path, options_json, created_at, started_at, completed_at, error_message FROM processing_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []JobRecord
	for rows.Next() {
		var rec JobRecord
		var created time.Time
		var started, completed sql.NullTime
		var errorMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.JobType, &rec.Status, &rec.InputPath, &rec.OptionsJSON, &created, &started, &completed, &errorMsg); err != nil {
			return nil, err
		}
		rec.CreatedAt = created
		if started.Valid {
			rec.StartedAt = &started.Time
		}
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		if errorMsg.Valid {
			rec.Error = errorMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// JobMeta fetches the last meta blob for a job.
func (s *Store) JobMeta(id string) (map[string]any, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	var metaJSON string
	err := s.DB.QueryRow(`SELECT meta_json FROM job_results WHERE job_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1;`, id).Scan(&metaJSON)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return meta, nil
}

// CatalogEvent is a file change seen by the watcher.
type CatalogEvent struct {
	FilePath  string
	EventType string
	EventTime time.Time
	JobID     string
}

// RecordCatalogEvent stores a watcher event and the job it started, if any.
func (s *Store) RecordCatalogEvent(ev CatalogEvent) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO catalog_events (file_path, event_type, event_time, job_id) VALUES (?, ?, ?, ?);`,
		ev.FilePath, ev.EventType, ev.EventTime, ev.JobID)
	return err
}

// CatalogEvents returns the latest watcher events up to limit.
func (s *Store) CatalogEvents(limit int) ([]CatalogEvent, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT file_path, event_type, event_time, job_id FROM catalog_events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogEvent
	for rows.Next() {
		var ev CatalogEvent
		var jobID sql.NullString
		if err := rows.Scan(&ev.FilePath, &ev.EventType, &ev.EventTime, &jobID); err != nil {
			return nil, err
		}
		ev.JobID = jobID.String
		out = append(out, ev)
	}
	return out, rows.Err()
}
