package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// Client command types.
const (
	CommandSetField   = "set_field"
	CommandAddItem    = "add_item"
	CommandDeleteItem = "delete_item"
	CommandSaveNow    = "save_now"
)

// Command is an edit sent by a dashboard client.
type Command struct {
	Type string `json:"type"`

	// set_field
	Path  string `json:"path,omitempty"`
	Value string `json:"value,omitempty"`

	// add_item, delete_item
	Collection string `json:"collection,omitempty"`
	Day        string `json:"day,omitempty"`
	ID         string `json:"id,omitempty"`
}

// apply runs cmd against the editor. Successful edits rebroadcast the document.
func (s *Server) apply(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandSetField:
		if err := s.editor.SetField(cmd.Path, cmd.Value); err != nil {
			return err
		}

	case CommandAddItem:
		coll, err := trip.ParseCollection(cmd.Collection)
		if err != nil {
			return err
		}
		id, err := s.editor.AddItem(coll, cmd.Day)
		if err != nil {
			return err
		}
		s.logger.Printf("Added %s item %s", coll, id)

	case CommandDeleteItem:
		coll, err := trip.ParseCollection(cmd.Collection)
		if err != nil {
			return err
		}
		if err := s.editor.DeleteItem(coll, cmd.ID); err != nil {
			return err
		}

	case CommandSaveNow:
		// Failures also arrive as a save_error status for every client.
		err := s.editor.SaveNow(ctx)
		if err != nil && !errors.Is(err, store.ErrNoCredential) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}

	s.BroadcastDocument()
	return nil
}
