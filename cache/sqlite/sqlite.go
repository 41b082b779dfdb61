// Package sqlite is the default durable cache tier, a single-file database
// next to the output files.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/kryptonlabs/leadscraper/cache"
)

type store struct {
	db *sql.DB
}

// New opens (and if needed creates) the cache database at path.
func New(path string) (cache.Store, error) {
	db, err := initDatabase(path)
	if err != nil {
		return nil, err
	}

	return &store{db: db}, nil
}

func initDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, createSchema(db)
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			expires_at INT NOT NULL
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
	const q = `SELECT payload, expires_at FROM cache_entries WHERE key = ?`

	var (
		payload   []byte
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, q, key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, cache.ErrMiss
	}

	if err != nil {
		return cache.Entry{}, err
	}

	return cache.Entry{Payload: payload, ExpiresAt: time.Unix(expiresAt, 0)}, nil
}

func (s *store) Set(ctx context.Context, key string, entry cache.Entry) error {
	const q = `
		INSERT INTO cache_entries (key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at
	`

	_, err := s.db.ExecContext(ctx, q, key, entry.Payload, entry.ExpiresAt.Unix())

	return err
}

func (s *store) Purge(ctx context.Context, now time.Time) error {
	const q = `DELETE FROM cache_entries WHERE expires_at < ?`

	_, err := s.db.ExecContext(ctx, q, now.Unix())

	return err
}

func (s *store) Close() error {
	return s.db.Close()
}
