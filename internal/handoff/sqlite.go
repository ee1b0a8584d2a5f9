package handoff

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"getbox/internal/media"
)

// SQLite keeps jobs in a local database file so prepared links survive a
// restart of a single-node deployment.
type SQLite struct {
	db     *sql.DB
	policy Policy
	now    func() time.Time
}

// NewSQLite opens (or creates) the database at path. ":memory:" is accepted.
func NewSQLite(ctx context.Context, path string, p Policy, opts ...Option) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", filepath.Dir(path), err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	o := buildOptions(opts)
	return &SQLite{db: db, policy: p.withDefaults(), now: o.now}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_created_at ON jobs(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, job media.Job) (string, error) {
	id := newID()
	job.CreatedAt = s.now()
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, payload, created_at) VALUES (?, ?, ?)`,
		id, string(data), job.CreatedAt.UnixMilli()); err != nil {
		return "", fmt.Errorf("storing job: %w", err)
	}
	if err := s.prune(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// prune drops expired rows, then the oldest past MaxEntries. Rows from the
// same millisecond go in insertion order, and keep is never evicted.
func (s *SQLite) prune(ctx context.Context, keep string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return fmt.Errorf("counting jobs: %w", err)
	}
	if n <= s.policy.MaxEntries {
		return nil
	}

	cutoff := s.now().Add(-s.policy.TTL).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ? AND id != ?`, cutoff, keep)
	if err != nil {
		return fmt.Errorf("pruning expired jobs: %w", err)
	}
	removed, _ := res.RowsAffected()

	over := n - int(removed) - s.policy.MaxEntries
	if over <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id IN (
			SELECT id FROM jobs WHERE id != ? ORDER BY created_at ASC, rowid ASC LIMIT ?
		)`, keep, over); err != nil {
		return fmt.Errorf("evicting jobs: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (media.Job, error) {
	if !validID(id) {
		return media.Job{}, ErrNotFound
	}
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM jobs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Job{}, ErrNotFound
	}
	if err != nil {
		return media.Job{}, fmt.Errorf("loading job: %w", err)
	}

	var job media.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return media.Job{}, fmt.Errorf("decoding job: %w", err)
	}
	if s.policy.expired(job.CreatedAt, s.now()) {
		_ = s.Delete(ctx, id)
		return media.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

// Len reports how many rows are stored, expired or not.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}
