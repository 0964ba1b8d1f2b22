package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Session represents one active WebSocket connection to a room.
type Session struct {
	ID           string    `json:"id"`
	RoomName     string    `json:"room_name"`
	UserID       string    `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func NewSession(roomName, userID string) *Session {
	return &Session{
		ID:           ksuid.New().String(),
		RoomName:     roomName,
		UserID:       userID,
		ConnectedAt:  time.Now(),
		LastActiveAt: time.Now(),
	}
}
