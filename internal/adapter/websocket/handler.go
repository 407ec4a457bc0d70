// Package websocket upgrades HTTP requests to WebSocket connections and hands them to the hub.
package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/pscheid92/chatrelay/internal/broadcast"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 4096
)

// Server runs an upgraded connection until it ends. *broadcast.Hub satisfies it.
type Server interface {
	Serve(origin string, transport broadcast.Transport) error
}

type Handler struct {
	upgrader gorillaws.Upgrader
	hub      Server
}

func NewHandler(hub Server, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     checkOrigin,
		},
		hub: hub,
	}
}

// Attach upgrades the request and blocks until the connection ends. origin is the client address
// the connection is counted against. On an upgrade failure the upgrader has already written the
// HTTP error response.
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request, origin string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	err = h.hub.Serve(origin, conn)

	var admissionErr *broadcast.AdmissionError
	if errors.As(err, &admissionErr) {
		slog.DebugContext(r.Context(), "WebSocket connection closed at admission", "origin", origin, "error", err)
		return nil
	}
	return err
}
