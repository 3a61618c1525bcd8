// Package github stores the trip document as a file in a GitHub repository through the
// contents API. The file's blob sha is the version token, and the API rejects writes whose
// sha is stale, so this is a compare-and-swap store.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// DefaultAPIURL is the public GitHub API endpoint.
const DefaultAPIURL = "https://api.github.com"

const apiVersion = "2022-11-28"

// Config holds configuration for the GitHub store.
type Config struct {
	Owner  string
	Repo   string
	Branch string
	Path   string

	// APIURL overrides the API endpoint (GitHub Enterprise, tests).
	APIURL string

	// Token is the write credential. Reads work without it on public repositories.
	Token string

	// Timeout bounds each request.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Branch:  "main",
		Path:    "data/trip.json",
		APIURL:  DefaultAPIURL,
		Timeout: 30 * time.Second,
	}
}

// Store is a store.RemoteStore backed by the GitHub contents API.
type Store struct {
	config Config
	client *http.Client
	logger *log.Logger
	now    func() time.Time
}

var _ store.RemoteStore = (*Store)(nil)

// New creates a GitHub store.
func New(config Config) (*Store, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	if config.Path == "" {
		return nil, fmt.Errorf("github path is required")
	}
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	if config.Branch == "" {
		config.Branch = "main"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Store{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: log.New(os.Stderr, "[github] ", log.LstdFlags),
		now:    time.Now,
	}, nil
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

// Name implements store.RemoteStore.
func (s *Store) Name() string {
	return fmt.Sprintf("github:%s/%s@%s:%s", s.config.Owner, s.config.Repo, s.config.Branch, s.config.Path)
}

// Capabilities implements store.RemoteStore.
func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{CompareAndSwap: true, Writable: s.config.Token != ""}
}

type contentResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Store) contentsURL() string {
	segments := strings.Split(strings.Trim(s.config.Path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(s.config.APIURL, "/"),
		url.PathEscape(s.config.Owner),
		url.PathEscape(s.config.Repo),
		strings.Join(segments, "/"))
}

func (s *Store) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Read implements store.RemoteStore.
func (s *Store) Read(ctx context.Context) (*trip.Document, store.Version, error) {
	target := s.contentsURL() + "?ref=" + url.QueryEscape(s.config.Branch)
	req, err := s.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, store.Version{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, store.Version{}, store.Network("github read", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, store.Version{}, statusError("github read", resp)
	}

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, store.Version{}, store.Malformed("github read", err)
	}
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, store.Version{}, store.Malformed("github read", fmt.Errorf("unsupported encoding %q", body.Encoding))
	}

	raw, err := decodeContent(body.Content)
	if err != nil {
		return nil, store.Version{}, store.Malformed("github read", err)
	}
	doc, err := trip.Decode(raw)
	if err != nil {
		return nil, store.Version{}, store.Malformed("github read", err)
	}
	return doc, store.HashVersion(body.SHA), nil
}

// Write implements store.RemoteStore. A zero expected version creates the file.
func (s *Store) Write(ctx context.Context, doc *trip.Document, expected store.Version) (store.Version, error) {
	if s.config.Token == "" {
		return store.Version{}, store.ErrNoCredential
	}

	data, err := trip.Encode(doc)
	if err != nil {
		return store.Version{}, err
	}
	payload, err := json.Marshal(putRequest{
		Message: fmt.Sprintf("Update trip data (%s)", s.now().UTC().Format(time.RFC3339)),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.config.Branch,
		SHA:     expected.Hash(),
	})
	if err != nil {
		return store.Version{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPut, s.contentsURL(), bytes.NewReader(payload))
	if err != nil {
		return store.Version{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return store.Version{}, store.Network("github write", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return store.Version{}, statusError("github write", resp)
	}

	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return store.Version{}, store.Malformed("github write", err)
	}
	if body.Content.SHA == "" {
		return store.Version{}, store.Malformed("github write", fmt.Errorf("response carries no content sha"))
	}

	s.logger.Printf("wrote %s (%s -> %s)", s.config.Path, expected, store.HashVersion(body.Content.SHA))
	return store.HashVersion(body.Content.SHA), nil
}

// statusError classifies a failed response. GitHub reports a stale sha either as 409 or
// as 422 with a message naming the sha.
func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorResponse
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		msg = body.Message
	}

	se := store.NewStatusError(op, resp.StatusCode, msg)
	if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "sha") {
		se.Kind = store.ErrVersionConflict
	}
	return se
}

// decodeContent decodes the API's newline-wrapped base64.
func decodeContent(s string) ([]byte, error) {
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	return data, nil
}
