package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mschirtzinger/tripsync/internal/backend"
	"github.com/mschirtzinger/tripsync/internal/localstate"
	"github.com/mschirtzinger/tripsync/internal/session"
	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/ui"
)

// fatal prints an error in the CLI's format and exits.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// client bundles what every document command needs.
type client struct {
	state    *localstate.State
	backend  *backend.Backend
	clientID string
	writable bool
}

func (c *client) Close() {
	if c.backend != nil {
		_ = c.backend.Close()
	}
	if c.state != nil {
		_ = c.state.Close()
	}
}

// openClient validates the configuration, resolves the credential and opens the backend.
func openClient(ctx context.Context) (*client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	state, err := localstate.Open(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state: %w", err)
	}
	c := &client{state: state}

	c.clientID, err = state.ClientID(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	credential, err := state.ResolveCredential(ctx, cfg.CredentialScope(), cfg.Credential)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.backend, err = backend.Open(ctx, cfg, backend.Options{
		ClientID:   c.clientID,
		Credential: credential,
		Logs:       logs,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.writable = c.backend.Store.Capabilities().Writable
	return c, nil
}

func (c *client) sessionConfig() *session.Config {
	sc := session.DefaultConfig()
	sc.Fixed = cfg.Fixed()
	sc.PollInterval = cfg.Sync.PollInterval
	sc.SaveDebounce = cfg.Sync.SaveDebounce
	sc.InitialPollDelay = cfg.Sync.InitialPollDelay
	sc.ClientID = c.clientID
	sc.Logger = logs.Debug("session")
	return sc
}

// startSession starts a session for a one-shot command. It refuses to continue when the
// remote copy exists but could not be read, so a later save cannot overwrite it blind.
func (c *client) startSession(ctx context.Context) (*session.Session, error) {
	sc := c.sessionConfig()
	sc.InitialPollDelay = 0
	sess, err := session.NewWithConfig(c.backend.Store, sc)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
		_ = sess.Close(ctx)
		return nil, err
	}
	return sess, nil
}

// saveAndClose flushes the session and reports the outcome.
func saveAndClose(ctx context.Context, sess *session.Session) error {
	err := sess.SaveNow(ctx)
	if closeErr := sess.Close(ctx); err == nil {
		err = closeErr
	}
	if errors.Is(err, store.ErrNoCredential) {
		return fmt.Errorf("no write credential for %s; run 'tripsync token set'", cfg.CredentialScope())
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), sess.Status().Text())
	return nil
}
