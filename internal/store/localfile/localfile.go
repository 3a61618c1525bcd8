// Package localfile stores the trip document in a JSON file on disk, typically on a
// shared or synced volume. The version token is the xxhash64 of the file bytes, and
// writes compare it under a lock before replacing the file atomically.
package localfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

const lockSuffix = ".lock"

// Config holds configuration for the file store.
type Config struct {
	Path string

	// ReadOnly disables writes, as a missing credential does for remote stores.
	ReadOnly bool
}

// Store is a store.RemoteStore backed by a local file.
type Store struct {
	config Config
	logger *log.Logger

	// mu serializes writers within the process; the lock file covers other processes.
	mu sync.Mutex
}

var (
	_ store.RemoteStore = (*Store)(nil)
	_ store.Watcher     = (*Store)(nil)
)

// New creates a file store.
func New(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	abs, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", config.Path, err)
	}
	config.Path = abs

	return &Store{
		config: config,
		logger: log.New(os.Stderr, "[localfile] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

// Name implements store.RemoteStore.
func (s *Store) Name() string {
	return "file:" + s.config.Path
}

// Capabilities implements store.RemoteStore.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{CompareAndSwap: true, Writable: !s.config.ReadOnly}
}

// Hash returns the version token of data.
func Hash(data []byte) store.Version {
	return store.HashVersion(strconv.FormatUint(xxhash.Sum64(data), 16))
}

// Read implements store.RemoteStore.
func (s *Store) Read(ctx context.Context) (*trip.Document, store.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Version{}, store.Network("file read", err)
	}

	data, err := os.ReadFile(s.config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.Version{}, fmt.Errorf("file read %s: %w", s.config.Path, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Version{}, store.Network("file read", err)
	}

	doc, err := trip.Decode(data)
	if err != nil {
		return nil, store.Version{}, store.Malformed("file read", err)
	}
	return doc, Hash(data), nil
}

// Write implements store.RemoteStore. The current file must hash to expected; a zero
// expected version requires the file to be absent.
func (s *Store) Write(ctx context.Context, doc *trip.Document, expected store.Version) (store.Version, error) {
	if s.config.ReadOnly {
		return store.Version{}, store.ErrNoCredential
	}
	if err := ctx.Err(); err != nil {
		return store.Version{}, store.Network("file write", err)
	}

	data, err := trip.Encode(doc)
	if err != nil {
		return store.Version{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return store.Version{}, store.Network("file write", err)
	}

	lock, err := os.OpenFile(s.config.Path+lockSuffix, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return store.Version{}, store.Network("file write", err)
	}
	defer lock.Close()
	if err := lockFile(lock); err != nil {
		return store.Version{}, store.Network("file write", err)
	}
	defer unlockFile(lock)

	current, err := s.currentVersion()
	if err != nil {
		return store.Version{}, store.Network("file write", err)
	}
	if current != expected {
		return store.Version{}, fmt.Errorf("file write: have %s, expected %s: %w", current, expected, store.ErrVersionConflict)
	}

	if err := writeAtomic(s.config.Path, data); err != nil {
		return store.Version{}, store.Network("file write", err)
	}

	next := Hash(data)
	s.logger.Printf("wrote %s (%s -> %s)", s.config.Path, expected, next)
	return next, nil
}

func (s *Store) currentVersion() (store.Version, error) {
	data, err := os.ReadFile(s.config.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.Version{}, nil
	}
	if err != nil {
		return store.Version{}, err
	}
	return Hash(data), nil
}

// writeAtomic writes data to a temp file in the target directory and renames it
// over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Watch implements store.Watcher. It calls onChange for every change to the file,
// including the store's own writes; the session's poll sorts those out by version.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if err := os.MkdirAll(filepath.Dir(s.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", s.config.Path, err)
	}

	return watchFile(ctx, s.config.Path, s.logger, onChange)
}
