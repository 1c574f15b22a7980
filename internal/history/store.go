// Package history persists project reload and export outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit is the number of rows Recent* return when limit <= 0.
const DefaultLimit = 20

// Reload kinds.
const (
	KindLoad   = "load"
	KindReload = "reload"
)

// Reload is one row of reload_log.
type Reload struct {
	ID          string        `json:"id"`
	Project     string        `json:"project"`
	Kind        string        `json:"kind"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Raster      string        `json:"raster_generation,omitempty"`
	Vector      string        `json:"vector_generation,omitempty"`
	Unchanged   bool          `json:"unchanged"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Export is one row of export_log.
type Export struct {
	ID        string        `json:"id"`
	Project   string        `json:"project"`
	Format    string        `json:"format"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store reads and writes history rows.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// RecordReload inserts r, assigning ID and CreatedAt when empty.
func (s *Store) RecordReload(ctx context.Context, r Reload) (Reload, error) {
	if r.Project == "" {
		return Reload{}, fmt.Errorf("project name is empty")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if r.Kind == "" {
		r.Kind = KindReload
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO reload_log(id, project, kind, fingerprint, raster_generation, vector_generation, unchanged, duration_ms, error, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, r.Project, r.Kind, nullString(r.Fingerprint), nullString(r.Raster), nullString(r.Vector),
		boolInt(r.Unchanged), r.Duration.Milliseconds(), nullString(r.Error), r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return Reload{}, fmt.Errorf("insert reload_log: %w", err)
	}
	return r, nil
}

// RecordExport inserts e, assigning ID and CreatedAt when empty.
func (s *Store) RecordExport(ctx context.Context, e Export) (Export, error) {
	if e.Project == "" {
		return Export{}, fmt.Errorf("project name is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO export_log(id, project, format, bytes, duration_ms, error, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Project, nullString(e.Format), e.Bytes, e.Duration.Milliseconds(), nullString(e.Error),
		e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return Export{}, fmt.Errorf("insert export_log: %w", err)
	}
	return e, nil
}

// RecentReloads returns up to limit reloads, newest first.
func (s *Store) RecentReloads(ctx context.Context, limit int) ([]Reload, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project, kind, fingerprint, raster_generation, vector_generation, unchanged, duration_ms, error, created_at
FROM reload_log
ORDER BY created_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reload_log: %w", err)
	}
	defer rows.Close()

	var out []Reload
	for rows.Next() {
		var (
			r                           Reload
			fingerprint, raster, vector sql.NullString
			errS                        sql.NullString
			unchanged                   int
			durationMS                  int64
			createdAt                   string
		)
		if err := rows.Scan(&r.ID, &r.Project, &r.Kind, &fingerprint, &raster, &vector, &unchanged, &durationMS, &errS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reload_log: %w", err)
		}
		r.Fingerprint = fingerprint.String
		r.Raster = raster.String
		r.Vector = vector.String
		r.Unchanged = unchanged != 0
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Error = errS.String
		if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse reload_log.created_at: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reload_log: %w", err)
	}
	return out, nil
}

// RecentExports returns up to limit exports, newest first.
func (s *Store) RecentExports(ctx context.Context, limit int) ([]Export, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project, format, bytes, duration_ms, error, created_at
FROM export_log
ORDER BY created_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query export_log: %w", err)
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		var (
			e            Export
			format, errS sql.NullString
			durationMS   int64
			createdAt    string
		)
		if err := rows.Scan(&e.ID, &e.Project, &format, &e.Bytes, &durationMS, &errS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export_log: %w", err)
		}
		e.Format = format.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.Error = errS.String
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse export_log.created_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export_log: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
