package gcs

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// memObject mimics GCS generation preconditions in memory.
type memObject struct {
	mu   sync.Mutex
	data []byte
	gen  int64
	err  error
}

func (m *memObject) read(context.Context) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	if m.gen == 0 {
		return nil, 0, storage.ErrObjectNotExist
	}
	return append([]byte(nil), m.data...), m.gen, nil
}

func (m *memObject) write(_ context.Context, data []byte, generation int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.gen {
		return 0, &googleapi.Error{Code: http.StatusPreconditionFailed, Message: "At least one of the pre-conditions you specified did not hold."}
	}
	m.data = append([]byte(nil), data...)
	m.gen += 1000
	return m.gen, nil
}

func newTestStore(obj *memObject, readOnly bool) *Store {
	s := newStore(Config{Bucket: "trips", Object: "trip.json", ReadOnly: readOnly}, obj)
	s.SetLogger(log.New(io.Discard, "", 0))
	return s
}

func testDoc() *trip.Document {
	return trip.Default(trip.Fixed{Title: "Alps", StartDate: "2026-07-21", EndDate: "2026-07-21"})
}

func TestReadMissing(t *testing.T) {
	s := newTestStore(&memObject{}, false)

	_, _, err := s.Read(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriteThenConflict(t *testing.T) {
	obj := &memObject{}
	s := newTestStore(obj, false)
	ctx := context.Background()

	v1, err := s.Write(ctx, testDoc(), store.Version{})
	require.NoError(t, err)
	assert.Equal(t, "1000", v1.Hash())

	// Create again fails: the object exists.
	_, err = s.Write(ctx, testDoc(), store.Version{})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	v2, err := s.Write(ctx, testDoc(), v1)
	require.NoError(t, err)
	assert.True(t, v2.NewerThan(v1))

	_, err = s.Write(ctx, testDoc(), v1)
	require.ErrorIs(t, err, store.ErrVersionConflict)
	var se *store.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusPreconditionFailed, se.StatusCode)

	doc, v, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2, v)
	assert.Equal(t, "Alps", doc.Meta.Title)
}

func TestReadOnly(t *testing.T) {
	obj := &memObject{}
	s := newTestStore(obj, true)

	assert.False(t, s.Capabilities().Writable)
	_, err := s.Write(context.Background(), testDoc(), store.Version{})
	require.ErrorIs(t, err, store.ErrNoCredential)
	assert.Zero(t, obj.gen)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing object", storage.ErrObjectNotExist, store.ErrNotFound},
		{"missing bucket", storage.ErrBucketNotExist, store.ErrNotFound},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, store.ErrUnauthorized},
		{"precondition", &googleapi.Error{Code: http.StatusPreconditionFailed}, store.ErrVersionConflict},
		{"server error", &googleapi.Error{Code: http.StatusServiceUnavailable}, store.ErrTransientNetwork},
		{"transport", errors.New("dial tcp: connection refused"), store.ErrTransientNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tt.err), tt.want)
		})
	}
}

func TestReadMalformed(t *testing.T) {
	s := newTestStore(&memObject{data: []byte("[]"), gen: 7}, false)

	_, _, err := s.Read(context.Background())
	require.ErrorIs(t, err, store.ErrMalformedPayload)
}

func TestWriteInvalidGeneration(t *testing.T) {
	s := newTestStore(&memObject{}, false)

	_, err := s.Write(context.Background(), testDoc(), store.HashVersion("not-a-number"))
	require.ErrorIs(t, err, store.ErrVersionConflict)
}
