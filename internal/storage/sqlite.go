// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the client-side key/value tiers for parley.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultOpTimeout bounds a single tier operation.
	DefaultOpTimeout = 5 * time.Second

	// changeRetention is how many change log rows are kept. Watchers that
	// fall further behind than this simply miss the older rows, which is
	// fine because every consumer reloads on notification.
	changeRetention = 512
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	origin     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS changes (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT,
	origin     TEXT NOT NULL,
	changed_at INTEGER NOT NULL
);
`

// =============================================================================
// EVENT
// =============================================================================

// Event describes one write recorded in the change log.
type Event struct {
	Seq       int64
	Key       string
	OldValue  string
	NewValue  string
	Removed   bool // NewValue is meaningless when true
	Origin    string
	ChangedAt time.Time
}

// =============================================================================
// SQLITE TIER
// =============================================================================

// SQLiteTier is the durable Tier shared by every process using the same
// database file.
type SQLiteTier struct {
	db      *sql.DB
	path    string
	origin  string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// SQLiteOption configures an SQLiteTier.
type SQLiteOption func(*SQLiteTier)

// WithOrigin overrides the generated origin id. Mostly useful in tests that
// simulate two processes against one file.
func WithOrigin(origin string) SQLiteOption {
	return func(s *SQLiteTier) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithOpTimeout sets the per-operation timeout.
func WithOpTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteTier) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// OpenSQLite opens (creating if needed) the durable tier at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteTier, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets readers in other processes proceed during writes; immediate
	// transactions avoid lock upgrade failures between concurrent writers.
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteTier{
		db:      db,
		path:    path,
		origin:  uuid.NewString(),
		timeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Tokens live here; keep the file private.
	_ = os.Chmod(path, 0600)

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteTier) Path() string { return s.path }

// Origin returns the id stamped on every write from this tier.
func (s *SQLiteTier) Origin() string { return s.origin }

// Close releases the database handle.
func (s *SQLiteTier) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteTier) ctx() (context.Context, context.CancelFunc, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	return ctx, cancel, nil
}

// Get returns the value stored under key.
func (s *SQLiteTier) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	ctx, cancel, err := s.ctx()
	if err != nil {
		return "", false, err
	}
	defer cancel()

	var value string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key. Writing the value already stored is a no-op
// and produces no change event.
func (s *SQLiteTier) Set(key, value string) error {
	return s.write(key, &value)
}

// Remove deletes key. Removing a missing key produces no change event.
func (s *SQLiteTier) Remove(key string) error {
	return s.write(key, nil)
}

// write applies a set (value != nil) or remove (value == nil) and records it
// in the change log within one transaction.
func (s *SQLiteTier) write(key string, value *string) error {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, cancel, err := s.ctx()
	if err != nil {
		return err
	}
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var old sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read %q: %w", key, err)
	}

	now := time.Now().UnixMilli()
	var newValue sql.NullString

	if value == nil {
		if !old.Valid {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to remove %q: %w", key, err)
		}
	} else {
		if old.Valid && old.String == *value {
			return nil
		}
		newValue = sql.NullString{String: *value, Valid: true}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, origin, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				origin = excluded.origin,
				updated_at = excluded.updated_at
		`, key, *value, s.origin, now)
		if err != nil {
			return fmt.Errorf("failed to write %q: %w", key, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (key, old_value, new_value, origin, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, old, newValue, s.origin, now)
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil && seq > changeRetention {
		if _, err := tx.ExecContext(ctx, `DELETE FROM changes WHERE seq <= ?`, seq-changeRetention); err != nil {
			return fmt.Errorf("failed to prune change log: %w", err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// CHANGE LOG
// =============================================================================

// LatestSeq returns the sequence number of the newest change, or 0.
func (s *SQLiteTier) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read change log: %w", err)
	}
	return seq.Int64, nil
}

// ChangesSince returns changes with seq > after, oldest first. Changes
// written by excludeOrigin are skipped.
func (s *SQLiteTier) ChangesSince(ctx context.Context, after int64, excludeOrigin string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, key, old_value, new_value, origin, changed_at
		FROM changes
		WHERE seq > ? AND origin != ?
		ORDER BY seq ASC
	`, after, excludeOrigin)
	if err != nil {
		return nil, fmt.Errorf("failed to query change log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev        Event
			old, nv   sql.NullString
			changedAt int64
		)
		if err := rows.Scan(&ev.Seq, &ev.Key, &old, &nv, &ev.Origin, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		ev.OldValue = old.String
		ev.NewValue = nv.String
		ev.Removed = !nv.Valid
		ev.ChangedAt = time.UnixMilli(changedAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
