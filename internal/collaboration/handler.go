package collaboration

import (
	"log"
	"net/http"

	"drawboard/internal/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, validate origin properly
		return true
	},
}

// WebSocketHandler upgrades HTTP connections and hands them to the
// session manager.
type WebSocketHandler struct {
	sessionManager *SessionManager
	defaultRoom    string
}

// NewWebSocketHandler creates a handler that joins connections without an
// explicit ?room= query to defaultRoom.
func NewWebSocketHandler(sessionManager *SessionManager, defaultRoom string) *WebSocketHandler {
	return &WebSocketHandler{
		sessionManager: sessionManager,
		defaultRoom:    defaultRoom,
	}
}

// HandleRoomConnection handles a websocket connection for one room. Room
// membership is chosen by the client-supplied room identifier at connect
// time; the user id is assigned server-side and is opaque and
// session-scoped.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room")
	if roomName == "" {
		roomName = h.defaultRoom
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return
	}

	userID := ksuid.New().String()
	session := &Session{
		Session: models.NewSession(roomName, userID),
		Room:    h.sessionManager.Registry().GetOrCreate(roomName),
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		Manager: h.sessionManager,
	}

	h.sessionManager.register <- session

	go session.WritePump()
	go session.ReadPump()

	log.Printf("✓ WebSocket connection established for room %s (user: %s)", roomName, userID)
}
