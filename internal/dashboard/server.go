// Package dashboard serves a live view of a trip session over WebSocket.
//
// Every connected client receives the working document with its totals on connect,
// then status changes and document replacements as they happen. Clients may send edit
// commands, which are applied to the session and rebroadcast to everyone.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mschirtzinger/tripsync/internal/session"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeStatus carries a session status change
	MessageTypeStatus MessageType = "status"

	// MessageTypeDocument carries the whole working document and its totals
	MessageTypeDocument MessageType = "document"

	// MessageTypeError reports a rejected client command to that client only
	MessageTypeError MessageType = "error"
)

// Message represents a dashboard message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatusData is the payload of a status message.
type StatusData struct {
	Kind    session.Kind `json:"kind"`
	Text    string       `json:"text"`
	IsError bool         `json:"is_error"`
	Version string       `json:"version,omitempty"`
	At      time.Time    `json:"at"`
}

// DocumentData is the payload of a document message.
type DocumentData struct {
	Document *trip.Document `json:"document"`
	Totals   trip.Totals    `json:"totals"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

// Editor is the session surface the dashboard reads and edits.
type Editor interface {
	Document() *trip.Document
	Totals() trip.Totals
	Status() session.Status
	SetField(path, value string) error
	AddItem(coll trip.Collection, day string) (string, error)
	DeleteItem(coll trip.Collection, id string) error
	SaveNow(ctx context.Context) error
}

var _ Editor = (*session.Session)(nil)

// Config holds dashboard server settings.
type Config struct {
	// Port to listen on. 0 picks a free port.
	Port int

	Logger *log.Logger
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// Server serves the dashboard page, its JSON endpoints and the WebSocket feed.
type Server struct {
	addr   string
	editor Editor
	hub    *hub
	logger *log.Logger

	listener net.Listener
	http     *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server for editor. It does not listen until Start.
func NewServer(config *Config, editor Editor) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   fmt.Sprintf(":%d", config.Port),
		editor: editor,
		hub:    newHub(logger),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/api/document", s.handleDocument)
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard")
	s.cancel()
	s.hub.closeAll("server shutting down")

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	return err
}

// Broadcast queues msg for every connected client.
func (s *Server) Broadcast(msg Message) {
	s.hub.enqueue(s.ctx, msg)
}

// BroadcastDocument sends the editor's current document to everyone.
func (s *Server) BroadcastDocument() {
	msg, err := documentMessage(s.editor.Document(), s.editor.Totals())
	if err != nil {
		s.logger.Printf("Failed to marshal document: %v", err)
		return
	}
	s.Broadcast(msg)
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	s.logger.Printf("Client connected (total: %d)", s.hub.add(conn))

	// A new client starts from the current document, then the latest status.
	if doc := s.editor.Document(); doc != nil {
		if msg, err := documentMessage(doc, s.editor.Totals()); err == nil {
			s.hub.sendTo(s.ctx, conn, msg)
		}
	}
	if msg, err := statusMessage(s.editor.Status()); err == nil {
		s.hub.sendTo(s.ctx, conn, msg)
	}

	go s.readCommands(conn)
}

// readCommands applies client commands until the client goes away. Rejected
// commands are reported to the sender only.
func (s *Server) readCommands(conn *websocket.Conn) {
	defer s.hub.remove(conn, websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.hub.sendTo(s.ctx, conn, errorMessage("", fmt.Errorf("invalid command: %w", err)))
			continue
		}
		if err := s.apply(s.ctx, cmd); err != nil {
			s.hub.sendTo(s.ctx, conn, errorMessage(cmd.Type, err))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.count(),
		"session": s.editor.Status().Kind,
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc := s.editor.Document()
	if doc == nil {
		http.Error(w, "document not loaded", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, DocumentData{Document: doc, Totals: s.editor.Totals()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, rootPage)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

const rootPage = `<!DOCTYPE html>
<html>
<head>
    <title>tripsync</title>
</head>
<body>
    <h1 id="title">tripsync</h1>
    <p id="status">Connecting…</p>
    <pre id="totals"></pre>
    <p>WebSocket endpoint: <code>/ws</code>, document: <a href="/api/document">/api/document</a></p>
    <script>
    const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onmessage = (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.type === "status") {
            document.getElementById("status").textContent = msg.data.text;
        } else if (msg.type === "document") {
            const d = msg.data;
            document.getElementById("title").textContent = d.document.meta.title;
            const c = d.document.meta.currency;
            document.getElementById("totals").textContent =
                "Flights  " + d.totals.flights + " " + c + "\n" +
                "Stays    " + d.totals.stays + " " + c + "\n" +
                "Expenses " + d.totals.expenses + " " + c + "\n" +
                "Total    " + d.totals.total + " " + c;
        } else if (msg.type === "error") {
            document.getElementById("status").textContent = "Error: " + msg.data.error;
        }
    };
    </script>
</body>
</html>`

func documentMessage(doc *trip.Document, totals trip.Totals) (Message, error) {
	data, err := json.Marshal(DocumentData{Document: doc, Totals: totals})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeDocument, Timestamp: time.Now(), Data: data}, nil
}

func statusMessage(st session.Status) (Message, error) {
	data, err := json.Marshal(StatusData{
		Kind:    st.Kind,
		Text:    st.Text(),
		IsError: st.IsError(),
		Version: st.Version,
		At:      st.At,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: data}, nil
}

func errorMessage(command string, err error) Message {
	data, _ := json.Marshal(ErrorData{Command: command, Error: err.Error()})
	return Message{Type: MessageTypeError, Timestamp: time.Now(), Data: data}
}
