package github_test

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/store/github"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

const testToken = "ghp_test"

// fakeContents emulates the single-file subset of the GitHub contents API.
type fakeContents struct {
	mu      sync.Mutex
	content []byte
	sha     string
	puts    int
	lastPut map[string]any

	// sha mismatches are answered with this status (409 or 422).
	conflictStatus int
}

func (f *fakeContents) set(content []byte) {
	sum := sha1.Sum(content)
	f.content = content
	f.sha = hex.EncodeToString(sum[:])
}

func (f *fakeContents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/repos/alice/trips/contents/data/trip.json" {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.Header.Get("X-GitHub-Api-Version") != "2022-11-28" {
			http.Error(w, `{"message":"missing api version"}`, http.StatusBadRequest)
			return
		}
		if f.content == nil {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		enc := base64.StdEncoding.EncodeToString(f.content)
		// The real API wraps base64 at 60 columns.
		var wrapped strings.Builder
		for len(enc) > 60 {
			wrapped.WriteString(enc[:60] + "\n")
			enc = enc[60:]
		}
		wrapped.WriteString(enc)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sha": f.sha, "content": wrapped.String(), "encoding": "base64",
		})

	case http.MethodPut:
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
			return
		}
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			http.Error(w, `{"message":"Problems parsing JSON"}`, http.StatusBadRequest)
			return
		}
		f.lastPut = body
		sha, _ := body["sha"].(string)
		if f.content != nil && sha == "" {
			http.Error(w, `{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`, http.StatusUnprocessableEntity)
			return
		}
		if f.content != nil && sha != f.sha {
			status := f.conflictStatus
			if status == 0 {
				status = http.StatusConflict
			}
			http.Error(w, fmt.Sprintf(`{"message":"data/trip.json is at %s but expected sha %s"}`, f.sha, sha), status)
			return
		}
		content, err := base64.StdEncoding.DecodeString(body["content"].(string))
		if err != nil {
			http.Error(w, `{"message":"content is not valid Base64"}`, http.StatusUnprocessableEntity)
			return
		}
		f.set(content)
		f.puts++
		_ = json.NewEncoder(w).Encode(map[string]any{"content": map[string]string{"sha": f.sha}})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, f *fakeContents, token string) *github.Store {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := github.DefaultConfig()
	cfg.Owner = "alice"
	cfg.Repo = "trips"
	cfg.APIURL = srv.URL
	cfg.Token = token
	s, err := github.New(cfg)
	require.NoError(t, err)
	s.SetLogger(log.New(io.Discard, "", 0))
	return s
}

func sampleDoc(title string) *trip.Document {
	return trip.Default(trip.Fixed{Title: title, StartDate: "2026-07-21", EndDate: "2026-07-22", Currency: "EUR"})
}

func TestRead(t *testing.T) {
	f := &fakeContents{}
	data, err := trip.Encode(sampleDoc("Summer"))
	require.NoError(t, err)
	f.set(data)
	s := newTestStore(t, f, "")

	doc, v, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Summer", doc.Meta.Title)
	assert.Equal(t, "EUR", doc.Meta.Currency)
	assert.Len(t, doc.Days, 2)
	assert.Equal(t, f.sha, v.Hash())
}

func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t, &fakeContents{}, "")

	_, _, err := s.Read(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRead_Malformed(t *testing.T) {
	f := &fakeContents{}
	f.set([]byte("not json"))
	s := newTestStore(t, f, "")

	_, _, err := s.Read(context.Background())
	require.ErrorIs(t, err, store.ErrMalformedPayload)
}

func TestCapabilities(t *testing.T) {
	assert.False(t, newTestStore(t, &fakeContents{}, "").Capabilities().Writable)

	caps := newTestStore(t, &fakeContents{}, testToken).Capabilities()
	assert.True(t, caps.Writable)
	assert.True(t, caps.CompareAndSwap)
}

func TestWrite_NoToken(t *testing.T) {
	f := &fakeContents{}
	s := newTestStore(t, f, "")

	_, err := s.Write(context.Background(), sampleDoc("x"), store.Version{})
	require.ErrorIs(t, err, store.ErrNoCredential)
	assert.Zero(t, f.puts)
}

func TestWrite_CompareAndSwap(t *testing.T) {
	f := &fakeContents{}
	data, err := trip.Encode(sampleDoc("v1"))
	require.NoError(t, err)
	f.set(data)
	s := newTestStore(t, f, testToken)
	ctx := context.Background()

	_, v1, err := s.Read(ctx)
	require.NoError(t, err)

	v2, err := s.Write(ctx, sampleDoc("v2"), v1)
	require.NoError(t, err)
	assert.True(t, v2.NewerThan(v1))
	assert.Equal(t, "main", f.lastPut["branch"])
	assert.Contains(t, f.lastPut["message"], "Update trip data (")

	// v1 is now stale.
	_, err = s.Write(ctx, sampleDoc("v3"), v1)
	require.ErrorIs(t, err, store.ErrVersionConflict)
	var se *store.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.StatusCode)

	doc, v, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Meta.Title)
	assert.Equal(t, v2, v)
}

func TestWrite_UnprocessableShaIsConflict(t *testing.T) {
	f := &fakeContents{conflictStatus: http.StatusUnprocessableEntity}
	data, err := trip.Encode(sampleDoc("v1"))
	require.NoError(t, err)
	f.set(data)
	s := newTestStore(t, f, testToken)

	_, err = s.Write(context.Background(), sampleDoc("v2"), store.HashVersion("deadbeef"))
	require.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = s.Write(context.Background(), sampleDoc("v2"), store.Version{})
	require.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestWrite_CreatesMissingFile(t *testing.T) {
	f := &fakeContents{}
	s := newTestStore(t, f, testToken)

	v, err := s.Write(context.Background(), sampleDoc("fresh"), store.Version{})
	require.NoError(t, err)
	assert.False(t, v.IsZero())
	_, hasSHA := f.lastPut["sha"]
	assert.False(t, hasSHA, "create must not send a sha")
}

func TestWrite_BadToken(t *testing.T) {
	f := &fakeContents{}
	s := newTestStore(t, f, "wrong")

	_, err := s.Write(context.Background(), sampleDoc("x"), store.Version{})
	require.ErrorIs(t, err, store.ErrUnauthorized)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestRead_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := github.DefaultConfig()
	cfg.Owner, cfg.Repo, cfg.APIURL = "alice", "trips", srv.URL
	s, err := github.New(cfg)
	require.NoError(t, err)

	_, _, err = s.Read(context.Background())
	require.ErrorIs(t, err, store.ErrTransientNetwork)
}

func TestNew_Validation(t *testing.T) {
	_, err := github.New(github.Config{Repo: "trips", Path: "a.json"})
	assert.Error(t, err)

	_, err = github.New(github.Config{Owner: "alice", Repo: "trips"})
	assert.Error(t, err)
}
