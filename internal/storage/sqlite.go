// Package storage opens the SQLite database that keeps reload and export history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens the database at path, creating it and its parent
// directory if needed, and ensures the history tables exist. The path must be
// on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := checkLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; history writes are small and infrequent.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates the history tables and indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reload_log (
  id                TEXT PRIMARY KEY,
  project           TEXT NOT NULL,
  kind              TEXT NOT NULL,
  fingerprint       TEXT,
  raster_generation TEXT,
  vector_generation TEXT,
  unchanged         INTEGER NOT NULL DEFAULT 0,
  duration_ms       INTEGER NOT NULL,
  error             TEXT,
  created_at        TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS export_log (
  id          TEXT PRIMARY KEY,
  project     TEXT NOT NULL,
  format      TEXT,
  bytes       INTEGER NOT NULL DEFAULT 0,
  duration_ms INTEGER NOT NULL,
  error       TEXT,
  created_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS reload_log_created_at_idx ON reload_log(created_at);`,
		`CREATE INDEX IF NOT EXISTS export_log_created_at_idx ON export_log(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
