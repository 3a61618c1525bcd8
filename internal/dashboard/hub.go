package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeTimeout = 5 * time.Second
	queueSize    = 100
)

// hub tracks connected clients and fans queued messages out to them.
type hub struct {
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	queue  chan Message
	logger *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{
		conns:  make(map[*websocket.Conn]struct{}),
		queue:  make(chan Message, queueSize),
		logger: logger,
	}
}

func (h *hub) add(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	return len(h.conns)
}

// remove closes conn once, however many goroutines notice it failing.
func (h *hub) remove(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close(code, reason)
	h.logger.Printf("Client disconnected (total: %d)", n)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *hub) snapshot() []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		out = append(out, conn)
	}
	return out
}

// closeAll disconnects every client. Close handshakes run concurrently so one
// unresponsive client does not hold up the rest.
func (h *hub) closeAll(reason string) {
	var g errgroup.Group
	g.SetLimit(8)
	for _, conn := range h.snapshot() {
		g.Go(func() error {
			h.remove(conn, websocket.StatusGoingAway, reason)
			return nil
		})
	}
	_ = g.Wait()
}

// enqueue drops msg when the queue is full so a slow client cannot block the session.
func (h *hub) enqueue(ctx context.Context, msg Message) {
	select {
	case h.queue <- msg:
	case <-ctx.Done():
	default:
		h.logger.Printf("Warning: dashboard queue full, dropping %s message", msg.Type)
	}
}

// run delivers queued messages until ctx is done.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			data, err := encode(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
				continue
			}
			for _, conn := range h.snapshot() {
				if err := write(ctx, conn, data); err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.remove(conn, websocket.StatusInternalError, "write failed")
				}
			}
		}
	}
}

// sendTo writes msg to one client directly, bypassing the queue.
func (h *hub) sendTo(ctx context.Context, conn *websocket.Conn, msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	if err := write(ctx, conn, data); err != nil {
		h.logger.Printf("Failed to send to client: %v", err)
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
