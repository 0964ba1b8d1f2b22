package client

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"drawboard/internal/models"

	"github.com/gorilla/websocket"
)

// Cursor is another user's last reported pointer position.
type Cursor struct {
	X     float64
	Y     float64
	Color string
}

// Client wires the client-side core to a server over a websocket: it owns
// the gesture builder, the reconciliation matcher, the live-segment relay
// and the canvas projection, and keeps them consistent with the server's
// event stream.
//
// Gesture methods (PointerDown/PointerMove/PointerUp) are driven by the
// caller's event loop; the read loop applies server events. A single mutex
// keeps the two from interleaving, preserving the handler atomicity the
// protocol assumes.
type Client struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	userID string
	color  string
	users  []models.User

	canvas  *Canvas
	builder *StrokeBuilder
	matcher *Matcher
	relay   *SegmentRelay
	cursors map[string]Cursor

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// Dial connects to a drawboard server and joins the given room (empty
// selects the server's default room). The returned client is usable once
// WaitReady reports the init event arrived.
func Dial(serverURL, room string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	if room != "" {
		q := u.Query()
		q.Set("room", room)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}

	c := &Client{
		conn:    conn,
		canvas:  NewCanvas(),
		builder: NewStrokeBuilder(),
		matcher: NewMatcher(DefaultMatchWindow),
		cursors: make(map[string]Cursor),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.relay = NewSegmentRelay(0, 0, c.emitSegment)

	go c.readLoop()
	return c, nil
}

// WaitReady blocks until the server's init event has been applied.
func (c *Client) WaitReady(timeout time.Duration) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed before init")
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for init")
	}
}

// Close cancels the live relay and closes the connection.
func (c *Client) Close() error {
	c.relay.Cancel()
	return c.conn.Close()
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Gesture API

// PointerDown begins a gesture at canvas-local coordinates.
func (c *Client) PointerDown(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder.Start(x, y)
}

// PointerMove extends the gesture (rendering the preview segment locally
// is the optimistic draw) and offers the last two points to the live
// relay for peer preview.
func (c *Client) PointerMove(x, y float64) {
	c.mu.Lock()
	preview, drawing := c.builder.Extend(x, y)
	if !drawing {
		c.mu.Unlock()
		return
	}
	seg := &models.PathSegment{
		OpID:   c.builder.OpID(),
		UserID: c.userID,
		Type:   models.TypePathSegment,
		Points: preview[:],
		Color:  c.builder.CurrentColor(),
		Size:   c.builder.CurrentSize(),
	}
	c.mu.Unlock()

	c.relay.Offer(seg)
}

// PointerUp ends the gesture: the relay is cancelled (the final stroke
// supersedes any buffered preview), the finished stroke becomes the single
// pending stroke and is sent to the server, and the local projection keeps
// it immediately. The server echo will be recognized and suppressed.
func (c *Client) PointerUp() *models.Stroke {
	c.relay.Cancel()

	c.mu.Lock()
	stroke := c.builder.End()
	if stroke == nil {
		c.mu.Unlock()
		return nil
	}
	stroke.UserID = c.userID
	c.matcher.SetPending(stroke)
	c.canvas.AddStroke(stroke)
	c.mu.Unlock()

	if err := c.sendDrawPayload(stroke); err != nil {
		log.Printf("⚠️  Failed to send stroke: %v", err)
	}
	return stroke
}

// SetColor sets the stroke color for subsequent gestures.
func (c *Client) SetColor(color string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder.SetColor(color)
}

// SetSize sets the stroke size for subsequent gestures.
func (c *Client) SetSize(size float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder.SetSize(size)
}

// SetEraser toggles eraser mode for subsequent gestures.
func (c *Client) SetEraser(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builder.SetEraser(on)
}

// Control API

// SendCursor reports the local pointer position to the room.
func (c *Client) SendCursor(x, y float64) error {
	return c.writeJSON(&models.ClientEvent{Type: models.EventCursor, X: x, Y: y})
}

// Undo asks the server to undo the room's most recent action.
func (c *Client) Undo() error {
	return c.writeJSON(&models.ClientEvent{Type: models.EventUndo})
}

// Redo asks the server to restore the most recently undone action.
func (c *Client) Redo() error {
	return c.writeJSON(&models.ClientEvent{Type: models.EventRedo})
}

// RequestFullState asks the server for the canonical replay set.
func (c *Client) RequestFullState() error {
	return c.writeJSON(&models.ClientEvent{Type: models.EventRequestFullState})
}

// Resync discards all transient local state (the pending stroke, every
// live overlay, anything buffered in the relay) and requests a fresh
// snapshot. Called after a reconnect; no attempt is made to replay missed
// events incrementally.
func (c *Client) Resync() error {
	c.relay.Cancel()

	c.mu.Lock()
	c.matcher.Clear()
	c.canvas.ClearOverlays()
	c.mu.Unlock()

	return c.RequestFullState()
}

// Accessors

// UserID returns the server-assigned user id, empty before init.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Color returns the server-assigned palette color, empty before init.
func (c *Client) Color() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.color
}

// Users returns the current room roster.
func (c *Client) Users() []models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]models.User, len(c.users))
	copy(users, c.users)
	return users
}

// PeerCursor returns a peer's last cursor position.
func (c *Client) PeerCursor(userID string) (Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.cursors[userID]
	return cur, ok
}

// Snapshot returns the current canvas projection for rendering.
func (c *Client) Snapshot() ([]*models.Stroke, map[string]*models.PathSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvas.Snapshot()
}

// StrokeCount reports the number of strokes in the projection.
func (c *Client) StrokeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvas.StrokeCount()
}

// Pending returns the stroke awaiting its server echo, or nil.
func (c *Client) Pending() *models.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matcher.Pending()
}

// Wiring

func (c *Client) emitSegment(seg *models.PathSegment) {
	if err := c.sendDrawPayload(seg); err != nil {
		log.Printf("⚠️  Failed to send path segment: %v", err)
	}
}

func (c *Client) sendDrawPayload(p models.DrawPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal draw payload: %w", err)
	}
	return c.writeJSON(&models.ClientEvent{Type: models.EventDrawEvent, Payload: raw})
}

func (c *Client) writeJSON(ev *models.ClientEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		ev, err := models.DecodeServerEvent(raw)
		if err != nil {
			log.Printf("⚠️  Dropping malformed server event: %v", err)
			continue
		}

		c.mu.Lock()
		c.apply(ev)
		c.mu.Unlock()
	}
}

// apply folds one server event into the local state. Runs under the
// client mutex.
func (c *Client) apply(ev *models.ServerEvent) {
	switch ev.Type {
	case models.EventInit:
		c.userID = ev.UserID
		c.color = ev.Color
		c.users = ev.Users
		c.canvas.Replay(ev.History)
		c.readyOnce.Do(func() { close(c.ready) })

	case models.EventDrawEvent:
		payload, err := models.DecodeDrawPayload(ev.Payload)
		if err != nil {
			log.Printf("⚠️  Dropping malformed draw payload: %v", err)
			return
		}
		switch p := payload.(type) {
		case *models.Stroke:
			if c.matcher.OnStroke(p) {
				// Self-echo: already rendered optimistically, the pending
				// stroke adopted the canonical opId. Nothing to draw.
				return
			}
			c.canvas.ClearOverlay(p.UserID)
			c.canvas.AddStroke(p)
		case *models.PathSegment:
			c.canvas.SetOverlay(p.UserID, p)
		}

	case models.EventCursor:
		c.cursors[ev.UserID] = Cursor{X: ev.X, Y: ev.Y, Color: ev.Color}

	case models.EventUserJoined:
		for _, u := range c.users {
			if u.ID == ev.UserID {
				return
			}
		}
		c.users = append(c.users, models.User{ID: ev.UserID, Color: ev.Color})

	case models.EventUserLeft:
		for i, u := range c.users {
			if u.ID == ev.UserID {
				c.users = append(c.users[:i], c.users[i+1:]...)
				break
			}
		}
		delete(c.cursors, ev.UserID)
		c.canvas.ClearOverlay(ev.UserID)

	case models.EventUsersUpdate:
		c.users = ev.Users

	case models.EventFullState:
		c.canvas.ClearOverlays()
		c.canvas.Replay(ev.Actions)

	case models.EventActionUndone:
		c.canvas.RemoveStroke(ev.OpID)

	case models.EventActionRedone:
		if ev.Action != nil {
			c.canvas.AddStroke(ev.Action)
		}
	}
}
