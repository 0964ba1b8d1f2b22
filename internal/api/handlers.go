package api

import (
	"encoding/json"
	"log"
	"net/http"

	"drawboard/internal/collaboration"
)

// Handler bundles the HTTP surface: websocket upgrades plus the small
// read-only REST endpoints.
type Handler struct {
	wsHandler *collaboration.WebSocketHandler
	manager   *collaboration.SessionManager
}

func NewHandler(wsHandler *collaboration.WebSocketHandler, manager *collaboration.SessionManager) *Handler {
	return &Handler{
		wsHandler: wsHandler,
		manager:   manager,
	}
}

// HandleRoomWebSocket upgrades a connection and joins it to a room.
func (h *Handler) HandleRoomWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleRoomConnection(w, r)
}

// ListRooms returns every room with its user and action counts. The
// snapshot is taken on the session manager's event loop so the numbers are
// consistent with the broadcast order.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	stats := h.manager.Stats()
	if stats == nil {
		stats = []collaboration.RoomStats{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("⚠️  Failed to encode room stats: %v", err)
	}
}
