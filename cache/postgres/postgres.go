// Package postgres is the shared durable cache tier, selected when a
// DATABASE_URL is configured so several workers can reuse each other's
// results.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/kryptonlabs/leadscraper/cache"
)

type store struct {
	db *sql.DB
}

// New connects to connString and ensures the cache table exists.
func New(connString string) (cache.Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, err
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			payload BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)
	`)

	return err
}

func (s *store) Get(ctx context.Context, key string) (cache.Entry, error) {
	const q = `SELECT payload, expires_at FROM cache_entries WHERE key = $1`

	var entry cache.Entry

	err := s.db.QueryRowContext(ctx, q, key).Scan(&entry.Payload, &entry.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, cache.ErrMiss
	}

	if err != nil {
		return cache.Entry{}, err
	}

	return entry, nil
}

func (s *store) Set(ctx context.Context, key string, entry cache.Entry) error {
	const q = `
		INSERT INTO cache_entries (key, payload, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.ExecContext(ctx, q, key, entry.Payload, entry.ExpiresAt)

	return err
}

func (s *store) Purge(ctx context.Context, now time.Time) error {
	const q = `DELETE FROM cache_entries WHERE expires_at < $1`

	_, err := s.db.ExecContext(ctx, q, now)

	return err
}

func (s *store) Close() error {
	return s.db.Close()
}
