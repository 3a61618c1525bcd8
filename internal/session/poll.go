package session

import (
	"context"
	"errors"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// PollOnce checks the remote copy and reconciles it with the working document.
//
// Local edit intent wins: while a save is in flight or edits are unsaved, the document
// is never replaced. Stores without compare-and-swap skip the read once the remote copy
// has been loaded, while compare-and-swap stores still read and report a remote change as
// pending. Otherwise a newer remote version, or any remote version when nothing has been
// loaded from the remote yet, replaces the document.
func (s *Session) PollOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.polling {
		s.mu.Unlock()
		return nil
	}
	// Without compare-and-swap a read only matters while the remote copy is still unseen.
	if (s.saving || s.dirty) && !s.caps.CompareAndSwap && s.loadedFromRemote {
		s.mu.Unlock()
		return nil
	}
	s.polling = true
	startVersion := s.version
	startGen := s.editGen
	s.mu.Unlock()

	remote, version, err := s.store.Read(ctx)

	s.mu.Lock()
	s.polling = false

	if err != nil {
		if !s.loadedFromRemote {
			s.remoteMissing = errors.Is(err, store.ErrNotFound)
		}
		st := s.setStatusLocked(KindSyncError, err.Error())
		s.mu.Unlock()
		s.emitStatus(st)
		return err
	}

	if s.saving || s.dirty {
		if !version.NewerThan(s.version) {
			s.mu.Unlock()
			return nil
		}
		st := s.setStatusLocked(KindRemotePending, "")
		s.mu.Unlock()
		s.emitStatus(st)
		return nil
	}

	// A save or an edit landed while the read was in flight; the result may predate it.
	if s.version != startVersion || s.editGen != startGen {
		s.mu.Unlock()
		return nil
	}

	var (
		st       Status
		replaced *trip.Document
	)
	if !s.loadedFromRemote || version.NewerThan(s.version) {
		s.doc = trip.Normalize(remote, s.config.Fixed)
		s.version = version
		s.loadedFromRemote = true
		s.remoteMissing = false
		replaced = s.doc.Clone()
		st = s.setStatusLocked(KindUpdated, "")
		s.logger.Printf("Updated to version %s", version)
	} else {
		st = s.setStatusLocked(KindSynced, "")
	}
	s.mu.Unlock()

	s.emitStatus(st)
	if replaced != nil {
		s.emitReplaced(replaced)
	}
	return nil
}
