package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/tripsync/internal/sched"
	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

var (
	epoch     = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	testFixed = trip.Fixed{Title: "Summer 2026 trip", StartDate: "2026-07-21", EndDate: "2026-07-25", Currency: "USD"}
)

// fakeStore is an in-memory compare-and-swap store with hooks for timing tests.
type fakeStore struct {
	mu       sync.Mutex
	writable bool
	data     []byte
	version  store.Version

	// nextVersions are handed out by successful writes; after that "vN" is used.
	nextVersions []string
	seq          int

	reads  int
	writes int

	readErr        error
	writeErrs      []error
	forceConflicts int

	// readHook runs after Read captured the remote state and before it returns.
	readHook func()

	// writeGate, when set, blocks every Write until it is closed.
	writeGate    chan struct{}
	writeEntered chan struct{}
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	return &fakeStore{writable: true, writeEntered: make(chan struct{}, 16)}
}

// setRemote replaces the remote copy as another client would.
func (f *fakeStore) setRemote(t *testing.T, doc *trip.Document, version string) {
	t.Helper()
	data, err := trip.Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	f.version = store.HashVersion(version)
}

func (f *fakeStore) remote(t *testing.T) *trip.Document {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := trip.Decode(f.data)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func (f *fakeStore) counts() (reads, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.writes
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) Capabilities() store.Capabilities {
	return store.Capabilities{CompareAndSwap: true, Writable: f.writable}
}

func (f *fakeStore) Read(ctx context.Context) (*trip.Document, store.Version, error) {
	f.mu.Lock()
	f.reads++
	err := f.readErr
	data, version := f.data, f.version
	hook := f.readHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, store.Version{}, err
	}
	if data == nil {
		return nil, store.Version{}, store.ErrNotFound
	}
	doc, derr := trip.Decode(data)
	if derr != nil {
		return nil, store.Version{}, store.Malformed("fake read", derr)
	}
	return doc, version, nil
}

func (f *fakeStore) Write(ctx context.Context, doc *trip.Document, expected store.Version) (store.Version, error) {
	f.mu.Lock()
	f.writes++
	gate := f.writeGate
	f.mu.Unlock()

	select {
	case f.writeEntered <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return store.Version{}, err
		}
	}
	if f.forceConflicts > 0 {
		f.forceConflicts--
		return store.Version{}, store.ErrVersionConflict
	}
	if expected != f.version {
		return store.Version{}, fmt.Errorf("fake write: %w", store.ErrVersionConflict)
	}

	data, err := trip.Encode(doc)
	if err != nil {
		return store.Version{}, err
	}
	f.data = data
	f.seq++
	next := fmt.Sprintf("v%d", f.seq)
	if len(f.nextVersions) > 0 {
		next = f.nextVersions[0]
		f.nextVersions = f.nextVersions[1:]
	}
	f.version = store.HashVersion(next)
	return f.version, nil
}

// watchingStore adds change notifications to fakeStore.
type watchingStore struct {
	*fakeStore
	nudges chan func()
}

func (w *watchingStore) Watch(ctx context.Context, onChange func()) error {
	w.nudges <- onChange
	<-ctx.Done()
	return nil
}

// recorder collects listener events.
type recorder struct {
	mu       sync.Mutex
	statuses []Status
	replaced []*trip.Document
}

func (r *recorder) OnStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) OnDocumentReplaced(d *trip.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced = append(r.replaced, d)
}

func (r *recorder) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) replacements() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replaced)
}

func (r *recorder) sawKind(k Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s.Kind == k {
			return true
		}
	}
	return false
}

func testConfig(clock sched.Clock) *Config {
	return &Config{
		Fixed:        testFixed,
		SaveDebounce: 350 * time.Millisecond,
		PollInterval: 10 * time.Second,
		ClientID:     "client-me",
		Clock:        clock,
		Logger:       log.New(io.Discard, "", 0),
	}
}

// setupSession starts a session over st on a fake clock. Load errors are ignored.
func setupSession(t *testing.T, st store.RemoteStore, config *Config) (*Session, *recorder) {
	t.Helper()
	s, err := NewWithConfig(st, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	rec := &recorder{}
	s.AddListener(rec)
	_ = s.Start(context.Background())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, rec
}

func remoteDoc(currency string) *trip.Document {
	doc := trip.Default(testFixed)
	doc.Meta.Currency = currency
	return doc
}
