package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/tripsync/internal/session"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

var testFixed = trip.Fixed{Title: "Lisbon", StartDate: "2026-05-01", EndDate: "2026-05-03", Currency: "EUR"}

// fakeEditor is an in-memory Editor.
type fakeEditor struct {
	mu     sync.Mutex
	doc    *trip.Document
	status session.Status
	saves  int
}

func newFakeEditor() *fakeEditor {
	return &fakeEditor{
		doc:    trip.Default(testFixed),
		status: session.Status{Kind: session.KindLoaded, At: time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)},
	}
}

func (f *fakeEditor) Document() *trip.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.Clone()
}

func (f *fakeEditor) Totals() trip.Totals {
	f.mu.Lock()
	defer f.mu.Unlock()
	return trip.ComputeTotals(f.doc)
}

func (f *fakeEditor) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEditor) SetField(path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return trip.SetField(f.doc, path, value)
}

func (f *fakeEditor) AddItem(coll trip.Collection, day string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return trip.AddItem(f.doc, coll, day)
}

func (f *fakeEditor) DeleteItem(coll trip.Collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return trip.DeleteItem(f.doc, coll, id)
}

func (f *fakeEditor) SaveNow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func startServer(t *testing.T, editor Editor) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)}, editor)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil reads messages until one of type want arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, want MessageType) Message {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed waiting for %s message: %v", want, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func decodeDocument(t *testing.T, msg Message) DocumentData {
	t.Helper()
	var data DocumentData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to decode document data: %v", err)
	}
	return data
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)}, newFakeEditor())
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || addr == ":0" {
		t.Errorf("Expected a bound address, got %q", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocket_InitialDocumentAndStatus(t *testing.T) {
	server := startServer(t, newFakeEditor())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)

	doc := decodeDocument(t, readUntil(t, ctx, conn, MessageTypeDocument))
	if doc.Document.Meta.Title != "Lisbon" || len(doc.Document.Days) != 3 {
		t.Errorf("unexpected initial document: %+v", doc.Document.Meta)
	}

	msg := readUntil(t, ctx, conn, MessageTypeStatus)
	var st StatusData
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Kind != session.KindLoaded || st.Text != "Loaded (09:30:00)" {
		t.Errorf("unexpected status %+v", st)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestWebSocket_CommandsBroadcastToAllClients(t *testing.T) {
	editor := newFakeEditor()
	server := startServer(t, editor)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, server)
	bob := dial(t, ctx, server)
	for _, c := range []*websocket.Conn{alice, bob} {
		readUntil(t, ctx, c, MessageTypeStatus)
	}

	cmd, _ := json.Marshal(Command{Type: CommandAddItem, Collection: "flights"})
	if err := alice.Write(ctx, websocket.MessageText, cmd); err != nil {
		t.Fatal(err)
	}

	doc := decodeDocument(t, readUntil(t, ctx, bob, MessageTypeDocument))
	if len(doc.Document.Flights) != 1 {
		t.Fatalf("Expected 1 flight after add_item, got %d", len(doc.Document.Flights))
	}
	id := doc.Document.Flights[0].ID
	readUntil(t, ctx, alice, MessageTypeDocument)

	cmd, _ = json.Marshal(Command{Type: CommandSetField, Path: "flights." + id + ".price", Value: "99.90"})
	if err := bob.Write(ctx, websocket.MessageText, cmd); err != nil {
		t.Fatal(err)
	}
	doc = decodeDocument(t, readUntil(t, ctx, alice, MessageTypeDocument))
	if got := doc.Totals.Total.String(); got != "99.9" {
		t.Errorf("Expected total 99.9, got %s", got)
	}

	cmd, _ = json.Marshal(Command{Type: CommandSaveNow})
	if err := alice.Write(ctx, websocket.MessageText, cmd); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		editor.mu.Lock()
		saves := editor.saves
		editor.mu.Unlock()
		if saves == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("save_now was not applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_RejectedCommandErrorsSenderOnly(t *testing.T) {
	server := startServer(t, newFakeEditor())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readUntil(t, ctx, conn, MessageTypeStatus)

	tests := []struct {
		raw         string
		wantCommand string
	}{
		{`{"type":"set_field","path":"meta.title","value":"Porto"}`, CommandSetField},
		{`{"type":"delete_item","collection":"stays","id":"nope"}`, CommandDeleteItem},
		{`{"type":"add_item","collection":"trains"}`, CommandAddItem},
		{`{"type":"explode"}`, "explode"},
		{`not json`, ""},
	}
	for _, tt := range tests {
		if err := conn.Write(ctx, websocket.MessageText, []byte(tt.raw)); err != nil {
			t.Fatal(err)
		}
		msg := readUntil(t, ctx, conn, MessageTypeError)
		var data ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.Command != tt.wantCommand || data.Error == "" {
			t.Errorf("%s: unexpected error payload %+v", tt.raw, data)
		}
	}
}

func TestHandler_ForwardsSessionEvents(t *testing.T) {
	server := startServer(t, newFakeEditor())
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readUntil(t, ctx, conn, MessageTypeStatus)

	handler.OnStatus(session.Status{Kind: session.KindSyncError, Message: "timeout"})
	msg := readUntil(t, ctx, conn, MessageTypeStatus)
	var st StatusData
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatal(err)
	}
	if !st.IsError || st.Text != "Sync error: timeout" {
		t.Errorf("unexpected status %+v", st)
	}

	replaced := trip.Default(testFixed)
	replaced.Meta.Currency = "GBP"
	handler.OnDocumentReplaced(replaced)
	doc := decodeDocument(t, readUntil(t, ctx, conn, MessageTypeDocument))
	if doc.Document.Meta.Currency != "GBP" {
		t.Errorf("Expected replaced document, got currency %s", doc.Document.Meta.Currency)
	}
}

func TestHTTPRoutes(t *testing.T) {
	server := NewServer(&Config{Logger: log.New(io.Discard, "", 0)}, newFakeEditor())
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" || health["session"] != "loaded" {
		t.Errorf("unexpected health %v", health)
	}

	resp, err = http.Get(ts.URL + "/api/document")
	if err != nil {
		t.Fatal(err)
	}
	var doc DocumentData
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if doc.Document == nil || doc.Document.Meta.Currency != "EUR" {
		t.Errorf("unexpected document %+v", doc.Document)
	}

	resp, err = http.Post(ts.URL+"/api/document", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestRootPageDoesNotEchoHost(t *testing.T) {
	server := NewServer(&Config{Logger: log.New(io.Discard, "", 0)}, newFakeEditor())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = `evil"><script>alert(1)</script>`
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "alert(1)") || strings.Contains(body, "evil") {
		t.Errorf("Root page echoes the request host: %s", body)
	}
	if !strings.Contains(body, "<code>/ws</code>") {
		t.Error("Expected root page to name the /ws endpoint")
	}
}
