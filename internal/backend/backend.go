// Package backend builds the configured remote store.
package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/mschirtzinger/tripsync/internal/config"
	"github.com/mschirtzinger/tripsync/internal/logging"
	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/store/gcs"
	"github.com/mschirtzinger/tripsync/internal/store/github"
	"github.com/mschirtzinger/tripsync/internal/store/localfile"
	"github.com/mschirtzinger/tripsync/internal/store/registry"
)

// Backend is an opened remote store plus the resources behind it.
type Backend struct {
	Store   store.RemoteStore
	closers []io.Closer
}

// Close releases clients held by the store.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Options are the per-process inputs next to the configuration.
type Options struct {
	// ClientID is recorded as the last writer by registry stores.
	ClientID string

	// Credential is the resolved write credential. Empty means read-only for backends
	// that need one.
	Credential string

	Logs *logging.Factory
}

// Open creates the store selected by cfg.Backend.Kind.
//
// Credential use per backend: the GitHub token, the registry bearer token, the Redis
// password when backend.redis.password is empty, and the GCS service account key file
// when backend.gcs.credentials_file is empty. The file backend needs none.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Backend, error) {
	logs := opts.Logs
	if logs == nil {
		logs = logging.Discard()
	}
	b := cfg.Backend

	switch b.Kind {
	case config.BackendGitHub:
		gc := github.DefaultConfig()
		gc.Owner = b.GitHub.Owner
		gc.Repo = b.GitHub.Repo
		if b.GitHub.Branch != "" {
			gc.Branch = b.GitHub.Branch
		}
		if b.GitHub.Path != "" {
			gc.Path = b.GitHub.Path
		}
		if b.GitHub.APIURL != "" {
			gc.APIURL = b.GitHub.APIURL
		}
		if cfg.Sync.HTTPTimeout > 0 {
			gc.Timeout = cfg.Sync.HTTPTimeout
		}
		gc.Token = opts.Credential

		st, err := github.New(gc)
		if err != nil {
			return nil, fmt.Errorf("failed to create github store: %w", err)
		}
		st.SetLogger(logs.Logger("github"))
		return &Backend{Store: st}, nil

	case config.BackendRegistry:
		if b.Registry.URL == "" {
			return nil, fmt.Errorf("backend.registry.url is required")
		}
		tr := registry.NewHTTPTransport(b.Registry.URL, opts.Credential, cfg.Sync.HTTPTimeout)
		st := registry.New(tr, opts.ClientID)
		st.SetLogger(logs.Logger("registry"))
		return &Backend{Store: st}, nil

	case config.BackendRedis:
		password := b.Redis.Password
		if password == "" {
			password = opts.Credential
		}
		tr, err := registry.NewRedisTransport(ctx, registry.RedisConfig{
			Addr:     b.Redis.Addr,
			Password: password,
			DB:       b.Redis.DB,
			Key:      b.Redis.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st := registry.New(tr, opts.ClientID)
		st.SetLogger(logs.Logger("redis"))
		return &Backend{Store: st, closers: []io.Closer{tr}}, nil

	case config.BackendFile:
		st, err := localfile.New(localfile.Config{Path: b.File.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to create file store: %w", err)
		}
		st.SetLogger(logs.Logger("localfile"))
		return &Backend{Store: st}, nil

	case config.BackendGCS:
		gc := gcs.Config{
			Bucket:          b.GCS.Bucket,
			Object:          b.GCS.Object,
			CredentialsFile: b.GCS.CredentialsFile,
			EmulatorHost:    b.GCS.EmulatorHost,
		}
		if gc.CredentialsFile == "" {
			gc.CredentialsFile = opts.Credential
		}
		gc.ReadOnly = gc.CredentialsFile == "" && gc.EmulatorHost == ""

		st, err := gcs.New(ctx, gc)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs store: %w", err)
		}
		st.SetLogger(logs.Logger("gcs"))
		return &Backend{Store: st, closers: []io.Closer{st}}, nil
	}

	return nil, fmt.Errorf("unknown backend kind %q", b.Kind)
}
