// Package store defines the remote store contract the sync session is written against.
//
// A RemoteStore reads and writes the whole trip document. Backends differ in what their
// version token is and whether a write can be rejected for being stale:
//
//   - content stores (github, localfile, gcs): the token is a content hash or object
//     generation, and Write fails with ErrVersionConflict when the expected token is stale.
//   - registry stores (registry): the token is meta.versionTimestamp inside the document,
//     and writes are never rejected. Divergence is only noticed on the next poll.
//
// The session treats both the same way through this interface; Capabilities tells it
// which guarantees it has.
package store

import (
	"context"
	"strconv"

	"github.com/mschirtzinger/tripsync/internal/trip"
)

// RemoteStore reads and writes the shared document.
type RemoteStore interface {
	// Read fetches the current remote document and its version.
	// Errors wrap ErrNotFound, ErrUnauthorized, ErrTransientNetwork or ErrMalformedPayload.
	Read(ctx context.Context) (*trip.Document, Version, error)

	// Write persists doc. expected is the last version the caller saw; a zero Version
	// means "no known version". Content stores return ErrVersionConflict when expected
	// is stale. Write may update version fields in doc.Meta.
	Write(ctx context.Context, doc *trip.Document, expected Version) (Version, error)

	// Capabilities describes the backend's guarantees.
	Capabilities() Capabilities

	// Name is a short human-readable backend description for status output.
	Name() string
}

// Capabilities describes what a backend guarantees.
type Capabilities struct {
	// CompareAndSwap is true when Write rejects a stale expected version.
	CompareAndSwap bool

	// Writable is false when no write credential is configured.
	Writable bool
}

// Watcher is implemented by stores that can notice remote changes without polling.
// onChange is called (possibly spuriously) whenever the remote copy may have changed.
// Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

type versionKind uint8

const (
	kindNone versionKind = iota
	kindHash
	kindStamp
)

// Version is an opaque revision token of the remote document.
type Version struct {
	kind  versionKind
	hash  string
	stamp int64
}

// HashVersion returns a content-hash (or generation) version.
func HashVersion(h string) Version {
	if h == "" {
		return Version{}
	}
	return Version{kind: kindHash, hash: h}
}

// StampVersion returns a logical-timestamp version.
func StampVersion(ms int64) Version {
	if ms == 0 {
		return Version{}
	}
	return Version{kind: kindStamp, stamp: ms}
}

// IsZero reports whether no version is known.
func (v Version) IsZero() bool {
	return v.kind == kindNone
}

// Hash returns the content hash, or "" for other kinds.
func (v Version) Hash() string { return v.hash }

// Stamp returns the logical timestamp, or 0 for other kinds.
func (v Version) Stamp() int64 { return v.stamp }

// NewerThan reports whether v (a freshly read remote version) should replace local.
// Hashes compare by inequality, timestamps must be strictly greater.
func (v Version) NewerThan(local Version) bool {
	switch {
	case v.kind == kindNone:
		return false
	case local.kind == kindNone:
		return true
	case v.kind != local.kind:
		return true
	case v.kind == kindHash:
		return v.hash != local.hash
	default:
		return v.stamp > local.stamp
	}
}

// String renders the token for logs and status output.
func (v Version) String() string {
	switch v.kind {
	case kindHash:
		if len(v.hash) > 12 {
			return v.hash[:12]
		}
		return v.hash
	case kindStamp:
		return "t" + strconv.FormatInt(v.stamp, 10)
	}
	return "none"
}
