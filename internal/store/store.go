// Package store persists run output: a SQLite archive of scored items
// and an atomically swapped JSON snapshot of the trend state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store owns the archive database and the trend-state snapshot file for
// one data directory.
type Store struct {
	conn      *sql.DB
	dataDir   string
	statePath string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    window_start TEXT NOT NULL,
    window_end TEXT NOT NULL,
    item_count INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id),
    canonical_id TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT,
    url TEXT,
    source_refs TEXT NOT NULL,
    categories TEXT NOT NULL,
    companies TEXT,
    technologies TEXT,
    keywords TEXT,
    summary TEXT,
    sentiment REAL NOT NULL,
    impact REAL NOT NULL,
    published_at TEXT,
    fetched_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_items_run ON items(run_id);
CREATE INDEX IF NOT EXISTS idx_items_canonical ON items(canonical_id);
`

// Open creates or opens the store under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "techradar.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{
		conn:      conn,
		dataDir:   dataDir,
		statePath: filepath.Join(dataDir, "trend-state.json"),
	}, nil
}

// Close closes the archive database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// StatePath returns the trend-state snapshot file path.
func (s *Store) StatePath() string {
	return s.statePath
}
