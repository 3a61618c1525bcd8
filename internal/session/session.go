package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/tripsync/internal/sched"
	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

var (
	// ErrNotLoaded is returned by mutations before Start has produced a document.
	ErrNotLoaded = errors.New("session has no document yet")

	// ErrRemoteNotLoaded fails a save that would overwrite a remote document this
	// session has never read.
	ErrRemoteNotLoaded = errors.New("remote document exists but has not been loaded")
)

// Config holds configuration for a session.
type Config struct {
	// Fixed holds the document fields enforced on every load and save.
	Fixed trip.Fixed

	// SaveDebounce is the quiet period after the last edit before saving.
	SaveDebounce time.Duration

	// PollInterval is how often the remote copy is checked.
	PollInterval time.Duration

	// InitialPollDelay schedules one extra poll shortly after Start.
	// Zero or negative disables it.
	InitialPollDelay time.Duration

	// ClientID is recorded as meta.lastWriterId on every save.
	ClientID string

	// Clock drives all timers. Tests use sched.FakeClock.
	Clock sched.Clock

	// Logger for session activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SaveDebounce:     350 * time.Millisecond,
		PollInterval:     10 * time.Second,
		InitialPollDelay: 2 * time.Second,
		Clock:            sched.Real(),
		Logger:           log.New(os.Stderr, "[session] ", log.LstdFlags),
	}
}

// Session owns the working copy of the shared document and keeps it in sync with a
// RemoteStore.
//
// All state lives behind one mutex. Network calls run without it, and every result is
// checked against the state found after the call returns, so a response that was
// overtaken by an edit or a save is dropped.
type Session struct {
	store  store.RemoteStore
	caps   store.Capabilities
	config *Config
	clock  sched.Clock
	logger *log.Logger

	debounce *sched.Debouncer

	mu               sync.Mutex
	doc              *trip.Document
	version          store.Version
	loadedFromRemote bool
	remoteMissing    bool
	dirty            bool
	saving           bool
	saveDone         chan struct{}
	polling          bool
	editGen          uint64
	status           Status
	listeners        []Listener
	started          bool
	closed           bool

	poller    *sched.Repeater
	earlyPoll sched.Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session over st with default timing.
func New(st store.RemoteStore, fixed trip.Fixed) (*Session, error) {
	config := DefaultConfig()
	config.Fixed = fixed
	return NewWithConfig(st, config)
}

// NewWithConfig creates a session with custom configuration.
func NewWithConfig(st store.RemoteStore, config *Config) (*Session, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Fixed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trip settings: %w", err)
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if config.Clock == nil {
		config.Clock = sched.Real()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:  st,
		caps:   st.Capabilities(),
		config: config,
		clock:  config.Clock,
		logger: config.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.debounce = sched.NewDebouncer(s.clock, config.SaveDebounce, s.saveTick)
	return s, nil
}

// AddListener registers l for status and document events.
func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start loads the document, then arms the poll loop, the extra early poll and, when
// the store supports it, change notifications.
//
// A failed load leaves the session running on the default document, marked as not yet
// loaded from the remote, so the first successful poll adopts the remote copy. Start
// still returns the load error so one-shot callers can refuse to write over a remote
// document they never saw.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	st := s.setStatusLocked(KindLoading, s.store.Name())
	s.mu.Unlock()
	s.emitStatus(st)

	s.logger.Printf("Loading from %s", s.store.Name())
	loadErr := s.load(ctx)

	s.mu.Lock()
	s.poller = sched.Every(s.clock, s.config.PollInterval, s.pollTick)
	if s.config.InitialPollDelay > 0 {
		s.earlyPoll = s.clock.AfterFunc(s.config.InitialPollDelay, s.pollTick)
	}
	s.mu.Unlock()

	if w, ok := s.store.(store.Watcher); ok {
		s.wg.Add(1)
		go s.watch(w)
	}

	return loadErr
}

func (s *Session) load(ctx context.Context) error {
	remote, version, err := s.store.Read(ctx)

	s.mu.Lock()
	var st Status
	if err != nil {
		s.doc = trip.Default(s.config.Fixed)
		s.version = store.Version{}
		s.loadedFromRemote = false
		s.remoteMissing = errors.Is(err, store.ErrNotFound)
		st = s.setStatusLocked(KindLoadFailed, err.Error())
		s.logger.Printf("Initial load failed, using default document: %v", err)
		err = fmt.Errorf("failed to load document: %w", err)
	} else {
		s.doc = trip.Normalize(remote, s.config.Fixed)
		s.version = version
		s.loadedFromRemote = true
		s.remoteMissing = false
		st = s.setStatusLocked(KindLoaded, "")
		s.logger.Printf("Loaded version %s", version)
	}
	snapshot := s.doc.Clone()
	s.mu.Unlock()

	s.emitStatus(st)
	s.emitReplaced(snapshot)
	return err
}

func (s *Session) watch(w store.Watcher) {
	defer s.wg.Done()
	if err := w.Watch(s.ctx, s.pollTick); err != nil {
		s.logger.Printf("Change notifications stopped: %v", err)
	}
}

// Close stops the timers and waits for in-flight callbacks. It then waits for a save
// started elsewhere to finish and saves until no edits are pending, returning the error
// of the first failed save.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	poller, early, cancel := s.poller, s.earlyPoll, s.cancel
	s.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if early != nil {
		early.Stop()
	}
	s.debounce.Cancel()
	cancel()
	s.wg.Wait()
	defer s.debounce.Cancel()

	flushed := false
	for {
		s.mu.Lock()
		if s.saving {
			done := s.saveDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("failed to wait for in-flight save: %w", ctx.Err())
			}
			continue
		}
		flush := s.dirty && s.doc != nil
		s.mu.Unlock()

		if !flush {
			return nil
		}
		if !flushed {
			s.logger.Println("Flushing pending changes")
			flushed = true
		}
		if err := s.SaveNow(ctx); err != nil {
			return err
		}
	}
}

// enter registers a timer callback. It returns false once the session is closed.
func (s *Session) enter() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.wg.Add(1)
	return s.ctx, true
}

func (s *Session) saveTick() {
	ctx, ok := s.enter()
	if !ok {
		return
	}
	defer s.wg.Done()

	if err := s.SaveNow(ctx); err != nil && !errors.Is(err, store.ErrNoCredential) {
		s.logger.Printf("Save failed: %v", err)
	}
}

func (s *Session) pollTick() {
	ctx, ok := s.enter()
	if !ok {
		return
	}
	defer s.wg.Done()

	if err := s.PollOnce(ctx); err != nil {
		s.logger.Printf("Poll failed: %v", err)
	}
}

// Document returns a copy of the working document, or nil before Start.
func (s *Session) Document() *trip.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Totals computes the totals of the working document.
func (s *Session) Totals() trip.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return trip.ComputeTotals(s.doc)
}

// Status returns the latest status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Version returns the version token of the last document read or written.
func (s *Session) Version() store.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Dirty reports whether there are edits not yet saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Store returns the session's remote store.
func (s *Session) Store() store.RemoteStore {
	return s.store
}

// setStatusLocked records a status. Callers emit it after unlocking.
func (s *Session) setStatusLocked(kind Kind, message string) Status {
	s.status = Status{
		Kind:    kind,
		At:      s.clock.Now(),
		Message: message,
		Version: s.version.String(),
	}
	return s.status
}

func (s *Session) snapshotListeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Listener(nil), s.listeners...)
}

func (s *Session) emitStatus(st Status) {
	for _, l := range s.snapshotListeners() {
		l.OnStatus(st)
	}
}

func (s *Session) emitReplaced(doc *trip.Document) {
	for _, l := range s.snapshotListeners() {
		l.OnDocumentReplaced(doc.Clone())
	}
}
