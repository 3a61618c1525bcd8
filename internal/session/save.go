package session

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// MarkDirty records that the working document changed and (re)starts the save delay.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	st := s.markDirtyLocked()
	s.mu.Unlock()

	s.emitStatus(st)
	s.debounce.Trigger()
}

func (s *Session) markDirtyLocked() Status {
	s.dirty = true
	s.editGen++
	return s.setStatusLocked(KindUnsaved, "")
}

// Update applies fn to the working document and marks it dirty. If fn fails nothing
// is marked, and fn must leave the document unchanged.
func (s *Session) Update(fn func(doc *trip.Document) error) error {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if err := fn(s.doc); err != nil {
		s.mu.Unlock()
		return err
	}
	st := s.markDirtyLocked()
	s.mu.Unlock()

	s.emitStatus(st)
	s.debounce.Trigger()
	return nil
}

// SetField sets one field of the working document. See trip.SetField for paths.
func (s *Session) SetField(path, value string) error {
	return s.Update(func(doc *trip.Document) error {
		return trip.SetField(doc, path, value)
	})
}

// AddItem appends a new item and returns its id.
func (s *Session) AddItem(coll trip.Collection, day string) (string, error) {
	var id string
	err := s.Update(func(doc *trip.Document) error {
		var err error
		id, err = trip.AddItem(doc, coll, day)
		return err
	})
	return id, err
}

// DeleteItem removes an item by id.
func (s *Session) DeleteItem(coll trip.Collection, id string) error {
	return s.Update(func(doc *trip.Document) error {
		return trip.DeleteItem(doc, coll, id)
	})
}

// SaveNow writes the working document.
//
// It does nothing while another save is in flight or before a document exists. Without
// a write credential it reports read-only, drops the dirty flag and returns
// store.ErrNoCredential without any network call. A version conflict is resolved by one
// reload of the remote version and one retry that overwrites it; a second conflict fails
// the save. A document that never came from the remote is not allowed to overwrite one
// that exists: the conflict, or for stores without compare-and-swap an unread remote,
// fails the save with ErrRemoteNotLoaded. A failed save leaves the document dirty and is
// not rescheduled.
func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.saving || s.doc == nil {
		s.mu.Unlock()
		return nil
	}
	if !s.caps.Writable {
		s.dirty = false
		st := s.setStatusLocked(KindReadOnly, "")
		s.mu.Unlock()

		s.debounce.Cancel()
		s.emitStatus(st)
		return store.ErrNoCredential
	}

	if !s.loadedFromRemote && !s.remoteMissing && !s.caps.CompareAndSwap {
		err := fmt.Errorf("failed to save: %w", ErrRemoteNotLoaded)
		st := s.setStatusLocked(KindSaveError, err.Error())
		s.mu.Unlock()

		s.debounce.Cancel()
		s.logger.Printf("Save refused: %v", err)
		s.emitStatus(st)
		return err
	}

	s.saving = true
	s.saveDone = make(chan struct{})
	overwrite := s.loadedFromRemote
	s.doc = trip.Normalize(s.doc, s.config.Fixed)
	snapshot := s.doc.Clone()
	if s.config.ClientID != "" {
		snapshot.Meta.LastWriterID = s.config.ClientID
	}
	expected := s.version
	gen := s.editGen
	st := s.setStatusLocked(KindSaving, "")
	s.mu.Unlock()

	// A manual save replaces the pending debounced one.
	s.debounce.Cancel()
	s.emitStatus(st)

	version, err := s.writeWithRetry(ctx, snapshot, expected, overwrite)

	s.mu.Lock()
	s.saving = false
	close(s.saveDone)
	if err != nil {
		st = s.setStatusLocked(KindSaveError, err.Error())
		s.mu.Unlock()

		s.logger.Printf("Save failed: %v", err)
		s.emitStatus(st)
		return err
	}

	s.version = version
	s.loadedFromRemote = true
	s.remoteMissing = false
	s.doc.Meta.VersionTimestamp = snapshot.Meta.VersionTimestamp
	s.doc.Meta.LastWriterID = snapshot.Meta.LastWriterID

	// Edits made while the write was in flight are not in the snapshot.
	rearm := s.editGen != gen
	if !rearm {
		s.dirty = false
	}
	st = s.setStatusLocked(KindSaved, "")
	var pending Status
	if rearm {
		pending = s.setStatusLocked(KindUnsaved, "")
	}
	s.mu.Unlock()

	s.logger.Printf("Saved version %s", version)
	s.emitStatus(st)
	if rearm {
		s.emitStatus(pending)
		s.debounce.Trigger()
	}
	return nil
}

// writeWithRetry writes snapshot, recovering from one version conflict when overwrite
// is set.
func (s *Session) writeWithRetry(ctx context.Context, snapshot *trip.Document, expected store.Version, overwrite bool) (store.Version, error) {
	version, err := s.store.Write(ctx, snapshot, expected)
	if err == nil {
		return version, nil
	}
	if !store.IsConflict(err) {
		return store.Version{}, fmt.Errorf("failed to save: %w", err)
	}
	if !overwrite {
		return store.Version{}, fmt.Errorf("failed to save: %w: %w", ErrRemoteNotLoaded, err)
	}

	s.logger.Printf("Version %s is stale, reloading before overwrite", expected)
	_, latest, err := s.store.Read(ctx)
	if err != nil {
		return store.Version{}, fmt.Errorf("failed to reload after conflict: %w", err)
	}

	s.mu.Lock()
	s.version = latest
	s.mu.Unlock()

	version, err = s.store.Write(ctx, snapshot, latest)
	if err != nil {
		return store.Version{}, fmt.Errorf("failed to save after reload: %w", err)
	}
	return version, nil
}
