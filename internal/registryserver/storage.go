package registryserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/tripsync/internal/sqlitedb"
)

// ErrNotFound is returned by Storage.Get for unknown keys.
var ErrNotFound = errors.New("document not found")

const storageSchema = `
CREATE TABLE IF NOT EXISTS docs (
	key TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Storage keeps registry documents in SQLite.
type Storage struct {
	db *sqlitedb.DB
}

// OpenStorage opens the document database at path.
func OpenStorage(ctx context.Context, path string) (*Storage, error) {
	db, err := sqlitedb.Open(ctx, path, storageSchema)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Get returns the stored body for key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.Conn().QueryRowContext(ctx, `SELECT body FROM docs WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return body, nil
}

// Put replaces the body stored for key.
func (s *Storage) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO docs (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, key, body, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
