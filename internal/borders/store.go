// Package borders persists the fitted pipeline artifacts that must be
// identical between training and serving: the numeric scaler, the
// per-column outlier bounds and the categorical probability model.
package borders

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Artifact names. Each is independently saved and loaded.
const (
	ScalerArtifact = "scaler"
	BoundsArtifact = "outlier_bounds"
	ModelArtifact  = "dtree_model"
)

// Store is a small keyed artifact store backed by SQLite. A training
// run writes each artifact at most once (per-name saved flags suppress
// redundant writes); serving runs only read.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	saved map[string]bool
}

// Open creates the parent directory if needed and opens (or creates)
// the artifact database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("borders: create directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("borders: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("borders: set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("borders: set journal_mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		name       TEXT PRIMARY KEY,
		payload    BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("borders: initialize schema: %w", err)
	}
	return &Store{db: db, saved: make(map[string]bool)}, nil
}

// Save upserts the artifact payload under name. A second Save for the
// same name within this process is a no-op.
func (s *Store) Save(name string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved[name] {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO artifacts (name, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("borders: save %s: %w", name, err)
	}
	s.saved[name] = true
	return nil
}

// Load returns the payload stored under name. An absent artifact is
// not an error: callers get (nil, false, nil) and decide for
// themselves whether absence is fatal.
func (s *Store) Load(name string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM artifacts WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("borders: load %s: %w", name, err)
	}
	return payload, true, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
