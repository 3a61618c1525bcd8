// Package localstate keeps per-machine client state: the client identifier written to
// meta.lastWriterId and cached write credentials, one per backend scope.
//
// Cached credentials are a convenience only. A credential from the configuration or the
// environment always takes precedence.
package localstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/tripsync/internal/sqlitedb"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const (
	clientIDKey      = "client_id"
	credentialPrefix = "credential:"
)

// State is the local state database.
type State struct {
	db *sqlitedb.DB
}

// Open opens the state database at path, creating it if needed.
func Open(ctx context.Context, path string) (*State, error) {
	db, err := sqlitedb.Open(ctx, path, schema)
	if err != nil {
		return nil, err
	}
	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

func (s *State) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *State) put(ctx context.Context, key, value string) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// ClientID returns this machine's client identifier, creating it on first use.
func (s *State) ClientID(ctx context.Context) (string, error) {
	id, ok, err := s.get(ctx, clientIDKey)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	id = uuid.NewString()
	// Two processes racing here both insert; the first one wins and is read back.
	if _, err := s.db.Conn().ExecContext(ctx,
		`INSERT OR IGNORE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		clientIDKey, id, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("failed to store client id: %w", err)
	}
	id, _, err = s.get(ctx, clientIDKey)
	return id, err
}

// Credential returns the cached credential for scope, or "" if there is none.
func (s *State) Credential(ctx context.Context, scope string) (string, error) {
	value, _, err := s.get(ctx, credentialPrefix+scope)
	return value, err
}

// SetCredential caches a credential for scope.
func (s *State) SetCredential(ctx context.Context, scope, credential string) error {
	if credential == "" {
		return fmt.Errorf("credential cannot be empty")
	}
	return s.put(ctx, credentialPrefix+scope, credential)
}

// ClearCredential removes the cached credential for scope. It reports whether one existed.
func (s *State) ClearCredential(ctx context.Context, scope string) (bool, error) {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, credentialPrefix+scope)
	if err != nil {
		return false, fmt.Errorf("failed to clear credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to clear credential: %w", err)
	}
	return n > 0, nil
}

// ResolveCredential picks the credential for scope: configured wins over cached.
func (s *State) ResolveCredential(ctx context.Context, scope, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return s.Credential(ctx, scope)
}
