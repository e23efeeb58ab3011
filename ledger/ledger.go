// CLAUDE:SUMMARY SQLite ledger of completed downloads: one row per acquired edition, WAL + BUSY-retry writes.
// Package ledger records every successful acquisition in SQLite so repeated
// runs can tell already-satisfied targets apart from fresh work. One row per
// (target, path); the fetcher's remote-size check handles byte-level
// idempotence, the ledger handles run-level bookkeeping.
//
// Open applies the production-safe pragmas via EXEC (driver-agnostic):
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	l, err := ledger.Open("kiosko.db")
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id         TEXT PRIMARY KEY,
	target_url TEXT NOT NULL,
	source_url TEXT NOT NULL,
	path       TEXT NOT NULL,
	size       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_target ON downloads(target_url);
`

// Record is one completed acquisition.
type Record struct {
	ID        string
	TargetURL string // the input URL the pipeline was asked to resolve
	SourceURL string // the resource URL actually fetched
	Path      string // absolute path of the published file
	Size      int64
	CreatedAt time.Time
}

// Ledger wraps the downloads table.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Insert records a completed download. The ID is generated when empty.
func (l *Ledger) Insert(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.Must(uuid.NewV7()).String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	err := execRetry(ctx, l.db,
		`INSERT INTO downloads (id, target_url, source_url, path, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.TargetURL, r.SourceURL, r.Path, r.Size, r.CreatedAt.UnixMilli())
	if err != nil {
		return Record{}, fmt.Errorf("ledger: insert: %w", err)
	}
	return r, nil
}

// ByTarget returns the most recent record for a target URL, or nil.
func (l *Ledger) ByTarget(ctx context.Context, targetURL string) (*Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, target_url, source_url, path, size, created_at
		 FROM downloads WHERE target_url = ?
		 ORDER BY created_at DESC LIMIT 1`, targetURL)

	var r Record
	var createdMs int64
	err := row.Scan(&r.ID, &r.TargetURL, &r.SourceURL, &r.Path, &r.Size, &createdMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: by target: %w", err)
	}
	r.CreatedAt = time.UnixMilli(createdMs)
	return &r, nil
}

const maxRetries = 3

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// execRetry executes a statement with automatic retry on SQLITE_BUSY,
// backing off 100/200/300 ms between attempts.
func execRetry(ctx context.Context, db *sql.DB, query string, args ...any) error {
	for i := 0; i < maxRetries; i++ {
		_, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == maxRetries-1 {
			return err
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("ledger: max retries exceeded")
}
