package models

import (
	"encoding/json"
	"fmt"
)

// Event types, client → server.
const (
	EventDrawEvent        = "draw_event"
	EventCursor           = "cursor"
	EventUndo             = "undo"
	EventRedo             = "redo"
	EventRequestFullState = "request_full_state"
)

// Event types, server → client.
const (
	EventInit         = "init"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventUsersUpdate  = "users_update"
	EventFullState    = "full_state"
	EventActionUndone = "action_undone"
	EventActionRedone = "action_redone"
)

// User is one room member as seen on the wire: an opaque session-scoped id
// plus a palette color assigned at join time.
type User struct {
	ID    string `json:"userId"`
	Color string `json:"color"`
}

// ClientEvent is a single inbound websocket frame. The Type field
// discriminates; only the fields relevant to that type are populated.
// draw_event payloads stay raw here and are decoded by DecodeDrawPayload.
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	X       float64         `json:"x,omitempty"`
	Y       float64         `json:"y,omitempty"`
}

// DecodeClientEvent parses one inbound frame and rejects frames with a
// missing or unknown type before they reach any handler.
func DecodeClientEvent(raw []byte) (*ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}

	switch ev.Type {
	case EventDrawEvent, EventCursor, EventUndo, EventRedo, EventRequestFullState:
		return &ev, nil
	case "":
		return nil, fmt.Errorf("event missing type")
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// ServerEvent is a single outbound websocket frame. One merged struct
// covers every server → client event; unused fields are omitted from the
// wire. The client decodes into the same shape.
type ServerEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"` // draw_event
	UserID  string          `json:"userId,omitempty"`
	Color   string          `json:"color,omitempty"`
	X       float64         `json:"x,omitempty"`
	Y       float64         `json:"y,omitempty"`
	History []*Stroke       `json:"history,omitempty"` // init
	Users   []User          `json:"users,omitempty"`   // init, users_update
	Actions []*Stroke       `json:"actions,omitempty"` // full_state
	OpID    string          `json:"opId,omitempty"`    // action_undone, action_redone
	Action  *Stroke         `json:"action,omitempty"`  // action_redone
}

// DecodeServerEvent parses one server frame on the client side.
func DecodeServerEvent(raw []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("malformed server event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("server event missing type")
	}
	return &ev, nil
}

// NewDrawEvent wraps a draw payload into an outbound draw_event frame.
func NewDrawEvent(payload DrawPayload) (*ServerEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal draw payload: %w", err)
	}
	return &ServerEvent{Type: EventDrawEvent, Payload: raw}, nil
}
