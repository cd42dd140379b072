package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_records (
  key        TEXT PRIMARY KEY,
  value      BLOB NOT NULL,
  expires_at INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore keeps session records in an embedded SQLite table. It serves
// single-node deployments that run without Redis.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore creates the records table if needed. A zero ttl keeps
// records forever.
func NewSQLiteStore(ctx context.Context, db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create session_records: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Save upserts value under key.
func (s *SQLiteStore) Save(ctx context.Context, key string, value []byte) error {
	var expires int64
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_records (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("sqlite save %s: %w", key, err)
	}
	return nil
}

// Load reads key. Missing and expired records are reported as not found.
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM session_records WHERE key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite load %s: %w", key, err)
	}

	if expires > 0 && s.now().Unix() >= expires {
		_ = s.Clear(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

// Clear deletes key.
func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite clear %s: %w", key, err)
	}
	return nil
}

// Purge deletes every expired record and reports how many went.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_records WHERE expires_at > 0 AND expires_at <= ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	return res.RowsAffected()
}
