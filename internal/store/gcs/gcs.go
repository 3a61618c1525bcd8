// Package gcs stores the trip document as a Google Cloud Storage object. The object
// generation is the version token and writes carry a generation precondition.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// Config holds configuration for the GCS store.
type Config struct {
	Bucket string
	Object string

	// CredentialsFile is a service account key file. Empty uses application default
	// credentials, or no credentials when ReadOnly is set.
	CredentialsFile string

	// EmulatorHost points the client at a local emulator, e.g. http://localhost:4443.
	EmulatorHost string

	ReadOnly bool
}

// object is the part of a GCS object handle the store needs.
type object interface {
	read(ctx context.Context) ([]byte, int64, error)
	write(ctx context.Context, data []byte, generation int64) (int64, error)
}

// Store is a store.RemoteStore backed by one GCS object.
type Store struct {
	config Config
	obj    object
	client *storage.Client
	logger *log.Logger
}

var _ store.RemoteStore = (*Store)(nil)

// New creates a GCS store and its storage client.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" || config.Object == "" {
		return nil, fmt.Errorf("gcs bucket and object are required")
	}

	var opts []option.ClientOption
	switch {
	case config.EmulatorHost != "":
		endpoint := strings.TrimRight(strings.TrimSpace(config.EmulatorHost), "/")
		opts = append(opts, option.WithEndpoint(endpoint+"/storage/v1/"), option.WithoutAuthentication())
	case config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	case config.ReadOnly:
		opts = append(opts, option.WithoutAuthentication())
	}
	if config.ReadOnly {
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	} else if config.EmulatorHost == "" {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	s := newStore(config, &gcsObject{handle: client.Bucket(config.Bucket).Object(config.Object)})
	s.client = client
	return s, nil
}

func newStore(config Config, obj object) *Store {
	return &Store{
		config: config,
		obj:    obj,
		logger: log.New(os.Stderr, "[gcs] ", log.LstdFlags),
	}
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

// Close releases the storage client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Name implements store.RemoteStore.
func (s *Store) Name() string {
	return fmt.Sprintf("gs://%s/%s", s.config.Bucket, s.config.Object)
}

// Capabilities implements store.RemoteStore.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{CompareAndSwap: true, Writable: !s.config.ReadOnly}
}

// Read implements store.RemoteStore.
func (s *Store) Read(ctx context.Context) (*trip.Document, store.Version, error) {
	data, gen, err := s.obj.read(ctx)
	if err != nil {
		return nil, store.Version{}, classify("gcs read", err)
	}
	doc, err := trip.Decode(data)
	if err != nil {
		return nil, store.Version{}, store.Malformed("gcs read", err)
	}
	return doc, generationVersion(gen), nil
}

// Write implements store.RemoteStore. A zero expected version only succeeds when the
// object does not exist yet.
func (s *Store) Write(ctx context.Context, doc *trip.Document, expected store.Version) (store.Version, error) {
	if s.config.ReadOnly {
		return store.Version{}, store.ErrNoCredential
	}

	var gen int64
	if !expected.IsZero() {
		var err error
		gen, err = strconv.ParseInt(expected.Hash(), 10, 64)
		if err != nil {
			return store.Version{}, fmt.Errorf("gcs write: invalid generation %q: %w", expected.Hash(), store.ErrVersionConflict)
		}
	}

	data, err := trip.Encode(doc)
	if err != nil {
		return store.Version{}, err
	}

	next, err := s.obj.write(ctx, data, gen)
	if err != nil {
		return store.Version{}, classify("gcs write", err)
	}

	s.logger.Printf("wrote %s (generation %d -> %d)", s.Name(), gen, next)
	return generationVersion(next), nil
}

func generationVersion(gen int64) store.Version {
	return store.HashVersion(strconv.FormatInt(gen, 10))
}

// classify maps storage client errors onto the store taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return store.NewStatusError(op, apiErr.Code, apiErr.Message)
	}
	return store.Network(op, err)
}

type gcsObject struct {
	handle *storage.ObjectHandle
}

func (o *gcsObject) read(ctx context.Context) ([]byte, int64, error) {
	r, err := o.handle.NewReader(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return data, r.Attrs.Generation, nil
}

func (o *gcsObject) write(ctx context.Context, data []byte, generation int64) (int64, error) {
	cond := storage.Conditions{DoesNotExist: true}
	if generation != 0 {
		cond = storage.Conditions{GenerationMatch: generation}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := o.handle.If(cond).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.Attrs().Generation, nil
}
