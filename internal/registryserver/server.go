// Package registryserver is a small reference server for the registry backend: it
// stores one JSON document per key and lets anyone read it, while writes need a bearer
// token signed with the server's key.
//
// Routes:
//
//	GET  /health
//	GET  /v1/docs/{key}   raw stored JSON, 404 if absent
//	PUT  /v1/docs/{key}   replace, needs a token whose doc claim is the key or "*"
package registryserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// MaxBodyBytes bounds accepted documents.
const MaxBodyBytes = 1 << 20

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Config holds server configuration.
type Config struct {
	// Listen is the listen address, e.g. ":8090".
	Listen string

	// SigningKey verifies write tokens.
	SigningKey []byte

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	Logger *log.Logger
}

// Server serves registry documents.
type Server struct {
	config  Config
	storage *Storage
	logger  *log.Logger
	router  http.Handler
}

// New creates a server over storage.
func New(config Config, storage *Storage) (*Server, error) {
	if len(config.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[registry] ", log.LstdFlags)
	}

	s := &Server{config: config, storage: storage, logger: config.Logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.config.CORSOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/v1/docs/{key}", s.handleGet)
	r.Put("/v1/docs/{key}", s.handlePut)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Registry listening on %s", s.config.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !keyPattern.MatchString(key) {
		writeError(w, http.StatusBadRequest, "invalid document key")
		return
	}

	body, err := s.storage.Get(r.Context(), key)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Printf("Get %s failed: %v", key, err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !keyPattern.MatchString(key) {
		writeError(w, http.StatusBadRequest, "invalid document key")
		return
	}
	if err := authorize(r, key, s.config.SigningKey); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, errWrongDoc) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil || object == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	if err := s.storage.Put(r.Context(), key, body); err != nil {
		s.logger.Printf("Put %s failed: %v", key, err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "bytes": len(body)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger writes one line per request.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Printf("%s %s %d %dms id=%s",
				r.Method, r.URL.Path, ww.Status(),
				time.Since(start).Milliseconds(),
				chimiddleware.GetReqID(r.Context()))
		})
	}
}

// corsHandler allows the listed origins. With none, no CORS headers are sent.
func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler
}
