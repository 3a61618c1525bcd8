package dashboard

import (
	"log"

	"github.com/mschirtzinger/tripsync/internal/session"
	"github.com/mschirtzinger/tripsync/internal/trip"
)

// Handler forwards session events to the dashboard server.
type Handler struct {
	server *Server
	logger *log.Logger
}

var _ session.Listener = (*Handler)(nil)

// NewHandler creates a session listener connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnStatus implements session.Listener.
func (h *Handler) OnStatus(st session.Status) {
	msg, err := statusMessage(st)
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return
	}
	h.server.Broadcast(msg)
}

// OnDocumentReplaced implements session.Listener.
func (h *Handler) OnDocumentReplaced(doc *trip.Document) {
	h.logger.Printf("Document replaced, %d days", len(doc.Days))

	msg, err := documentMessage(doc, trip.ComputeTotals(doc))
	if err != nil {
		h.logger.Printf("Failed to marshal document: %v", err)
		return
	}
	h.server.Broadcast(msg)
}
