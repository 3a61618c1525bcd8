package session

import (
	"fmt"
	"time"

	"github.com/mschirtzinger/tripsync/internal/trip"
)

// Kind identifies a status event.
type Kind string

const (
	KindLoading       Kind = "loading"
	KindLoaded        Kind = "loaded"
	KindLoadFailed    Kind = "load_failed"
	KindUnsaved       Kind = "unsaved"
	KindSaving        Kind = "saving"
	KindSaved         Kind = "saved"
	KindSaveError     Kind = "save_error"
	KindReadOnly      Kind = "read_only"
	KindSynced        Kind = "synced"
	KindUpdated       Kind = "updated"
	KindRemotePending Kind = "remote_pending"
	KindSyncError     Kind = "sync_error"
)

// Status is the session's latest user-visible state.
type Status struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	// Message carries the error text for the error kinds and the store name for loading.
	Message string `json:"message,omitempty"`

	// Version is the local version token after the event.
	Version string `json:"version,omitempty"`
}

// IsError reports whether the status reports a failure.
func (s Status) IsError() bool {
	return s.Kind == KindLoadFailed || s.Kind == KindSaveError || s.Kind == KindSyncError
}

// Text renders the status line shown to users.
func (s Status) Text() string {
	at := s.At.Format("15:04:05")
	switch s.Kind {
	case KindLoading:
		if s.Message != "" {
			return fmt.Sprintf("Loading from %s…", s.Message)
		}
		return "Loading…"
	case KindLoaded:
		return fmt.Sprintf("Loaded (%s)", at)
	case KindLoadFailed:
		return fmt.Sprintf("Cannot load remote: %s", s.Message)
	case KindUnsaved:
		return fmt.Sprintf("Unsaved changes (%s)", at)
	case KindSaving:
		return "Saving…"
	case KindSaved:
		return fmt.Sprintf("Saved (%s)", at)
	case KindSaveError:
		return fmt.Sprintf("Save error: %s", s.Message)
	case KindReadOnly:
		return "Read-only (no credential). Changes won't save for everyone."
	case KindSynced:
		return fmt.Sprintf("Synced (%s)", at)
	case KindUpdated:
		return fmt.Sprintf("Updated from server (%s)", at)
	case KindRemotePending:
		return fmt.Sprintf("Server updated, but you have local changes (%s)", at)
	case KindSyncError:
		return fmt.Sprintf("Sync error: %s", s.Message)
	}
	return string(s.Kind)
}

// Listener receives session events. Callbacks run on the goroutine that caused the
// event, never under the session lock, so they may call back into the session.
type Listener interface {
	OnStatus(Status)

	// OnDocumentReplaced is called with a private copy whenever the whole document was
	// replaced (initial load, remote update), meaning any rendering must start over.
	OnDocumentReplaced(*trip.Document)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Status   func(Status)
	Replaced func(*trip.Document)
}

func (l ListenerFuncs) OnStatus(s Status) {
	if l.Status != nil {
		l.Status(s)
	}
}

func (l ListenerFuncs) OnDocumentReplaced(d *trip.Document) {
	if l.Replaced != nil {
		l.Replaced(d)
	}
}
