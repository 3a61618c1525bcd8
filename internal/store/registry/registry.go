// Package registry implements the registry store: a plain key-value endpoint that keeps
// the document as one opaque JSON value and performs no version check of its own.
//
// The version token lives inside the document as meta.versionTimestamp. Every write
// stamps it with max(now, expected+1) milliseconds and records the writer's client id,
// and readers treat a strictly greater stamp as newer. Two writers that both start from
// the same stamp both succeed; the later PUT wins and the earlier writer only learns
// about it on its next poll. That is a weaker guarantee than the content stores give.
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// Transport moves the raw document bytes to and from the registry.
type Transport interface {
	// Get returns the stored bytes, or an error wrapping store.ErrNotFound.
	Get(ctx context.Context) ([]byte, error)

	// Put replaces the stored bytes.
	Put(ctx context.Context, body []byte) error

	// Writable reports whether Put can succeed with the configured credential.
	Writable() bool

	Name() string
}

// Store is a store.RemoteStore over a registry Transport.
type Store struct {
	transport Transport
	clientID  string
	logger    *log.Logger
	now       func() time.Time
}

var (
	_ store.RemoteStore = (*Store)(nil)
	_ store.Watcher     = (*Store)(nil)
)

// New creates a registry store. clientID is recorded as meta.lastWriterId on every write.
func New(transport Transport, clientID string) *Store {
	return &Store{
		transport: transport,
		clientID:  clientID,
		logger:    log.New(os.Stderr, "[registry] ", log.LstdFlags),
		now:       time.Now,
	}
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

// SetClock replaces the time source used for stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Name implements store.RemoteStore.
func (s *Store) Name() string {
	return "registry:" + s.transport.Name()
}

// Capabilities implements store.RemoteStore.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{CompareAndSwap: false, Writable: s.transport.Writable()}
}

// Read implements store.RemoteStore.
func (s *Store) Read(ctx context.Context) (*trip.Document, store.Version, error) {
	body, err := s.transport.Get(ctx)
	if err != nil {
		return nil, store.Version{}, err
	}
	doc, err := trip.Decode(body)
	if err != nil {
		return nil, store.Version{}, store.Malformed("registry read", err)
	}
	return doc, store.StampVersion(doc.Meta.VersionTimestamp), nil
}

// Write implements store.RemoteStore. It stamps doc.Meta in place and never returns
// store.ErrVersionConflict.
func (s *Store) Write(ctx context.Context, doc *trip.Document, expected store.Version) (store.Version, error) {
	if !s.transport.Writable() {
		return store.Version{}, store.ErrNoCredential
	}

	stamp := NextStamp(s.now(), expected)
	doc.Meta.VersionTimestamp = stamp
	if s.clientID != "" {
		doc.Meta.LastWriterID = s.clientID
	}

	body, err := trip.Encode(doc)
	if err != nil {
		return store.Version{}, err
	}
	if err := s.transport.Put(ctx, body); err != nil {
		return store.Version{}, err
	}

	s.logger.Printf("wrote %s (%s -> t%d)", s.transport.Name(), expected, stamp)
	return store.StampVersion(stamp), nil
}

// NextStamp returns max(now in ms, expected+1), so stamps from one client are strictly
// increasing even when its clock goes backwards.
func NextStamp(now time.Time, expected store.Version) int64 {
	stamp := now.UnixMilli()
	if next := expected.Stamp() + 1; next > stamp {
		stamp = next
	}
	return stamp
}

// Watch implements store.Watcher when the transport can observe changes; otherwise it
// blocks until ctx is done and the session relies on polling alone.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, ok := s.transport.(store.Watcher)
	if !ok {
		<-ctx.Done()
		return nil
	}
	if err := w.Watch(ctx, onChange); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.transport.Name(), err)
	}
	return nil
}
