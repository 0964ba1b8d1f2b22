package collaboration

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"
	"time"

	"drawboard/internal/canvas"
	"drawboard/internal/middleware"
	"drawboard/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

/*
WEBSOCKET SESSION MANAGER

Central hub for the drawing protocol. One event-loop goroutine owns every
room's user roster and action log, so "validate → append → broadcast" runs
atomically with respect to every other event: message handlers never
interleave mid-execution and the canvas state needs no locks.

Each session gets its own read and write pump goroutines; the read pump
only feeds raw frames into the loop, the write pump only drains the
session's buffered Send channel.
*/

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameBytes  = 1 << 20
)

// SessionManager routes every websocket event through a single loop.
type SessionManager struct {
	registry        *canvas.Registry
	maxStrokePoints int

	// roomName -> set of sessions
	sessions map[string]map[*Session]bool

	register   chan *Session
	unregister chan *Session
	inbound    chan *inboundEvent
	stats      chan chan []RoomStats

	done    chan struct{}
	stopped chan struct{}
}

// Session is one live connection: identity plus the room it joined and a
// buffered outbound channel drained by its write pump.
type Session struct {
	*models.Session
	Room    *canvas.Room
	User    *models.User
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *SessionManager
}

type inboundEvent struct {
	session *Session
	raw     []byte
}

// RoomStats is a point-in-time view of one room, read off the event loop
// so it is always consistent with the broadcast order.
type RoomStats struct {
	Name    string `json:"name"`
	Users   int    `json:"users"`
	Actions int    `json:"actions"`
}

// NewSessionManager creates a manager over the given room registry.
// maxStrokePoints caps inbound stroke point lists; zero means the default.
func NewSessionManager(registry *canvas.Registry, maxStrokePoints int) *SessionManager {
	if maxStrokePoints <= 0 {
		maxStrokePoints = models.DefaultMaxStrokePoints
	}
	return &SessionManager{
		registry:        registry,
		maxStrokePoints: maxStrokePoints,
		sessions:        make(map[string]map[*Session]bool),
		register:        make(chan *Session),
		unregister:      make(chan *Session),
		inbound:         make(chan *inboundEvent, 256),
		stats:           make(chan chan []RoomStats),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// Registry exposes the room registry backing this manager.
func (sm *SessionManager) Registry() *canvas.Registry {
	return sm.registry
}

// Start begins the event loop.
func (sm *SessionManager) Start() {
	log.Println("🔄 Starting WebSocket session manager...")

	go func() {
		defer close(sm.stopped)
		for {
			select {
			case <-sm.done:
				log.Println("Session manager shutting down...")
				return

			case session := <-sm.register:
				sm.handleRegister(session)

			case session := <-sm.unregister:
				sm.handleUnregister(session)

			case ev := <-sm.inbound:
				sm.safeHandle(ev)

			case reply := <-sm.stats:
				reply <- sm.collectStats()
			}
		}
	}()

	log.Println("✓ WebSocket session manager started")
}

// Shutdown stops the loop and closes every connection.
func (sm *SessionManager) Shutdown() {
	log.Println("🛑 Shutting down session manager...")

	close(sm.done)
	<-sm.stopped

	for _, sessions := range sm.sessions {
		for session := range sessions {
			close(session.Send)
			session.Conn.Close()
		}
	}
	sm.sessions = make(map[string]map[*Session]bool)

	log.Println("✓ Session manager shutdown complete")
}

// Stats returns a consistent snapshot of every room, or nil after shutdown.
func (sm *SessionManager) Stats() []RoomStats {
	reply := make(chan []RoomStats, 1)
	select {
	case sm.stats <- reply:
		return <-reply
	case <-sm.stopped:
		return nil
	}
}

func (sm *SessionManager) collectStats() []RoomStats {
	names := sm.registry.Names()
	out := make([]RoomStats, 0, len(names))
	for _, name := range names {
		room := sm.registry.GetOrCreate(name)
		out = append(out, RoomStats{
			Name:    name,
			Users:   room.UserCount(),
			Actions: room.Log.Len(),
		})
	}
	return out
}

// handleRegister joins a session to its room: assign a palette color, send
// the initial sync (history + roster) to the joiner and announce the join
// to the room.
func (sm *SessionManager) handleRegister(session *Session) {
	room := session.Room
	session.User = room.AddUser(session.UserID)

	if sm.sessions[room.Name] == nil {
		sm.sessions[room.Name] = make(map[*Session]bool)
	}
	sm.sessions[room.Name][session] = true

	log.Printf("  Session %s joined room %s as user %s (total: %d users)",
		session.ID, room.Name, session.UserID, room.UserCount())

	sm.sendTo(session, &models.ServerEvent{
		Type:    models.EventInit,
		UserID:  session.UserID,
		Color:   session.User.Color,
		History: room.Log.Active(),
		Users:   room.UserList(),
	})

	sm.broadcast(room.Name, &models.ServerEvent{
		Type:   models.EventUserJoined,
		UserID: session.UserID,
		Color:  session.User.Color,
	}, session)
	sm.broadcast(room.Name, &models.ServerEvent{
		Type:  models.EventUsersUpdate,
		Users: room.UserList(),
	}, nil)
}

// handleUnregister removes a session from its room and notifies the
// remaining members. The room itself is never destroyed.
func (sm *SessionManager) handleUnregister(session *Session) {
	room := session.Room
	sessions, ok := sm.sessions[room.Name]
	if !ok || !sessions[session] {
		return
	}

	delete(sessions, session)
	close(session.Send)
	if len(sessions) == 0 {
		delete(sm.sessions, room.Name)
	}
	room.RemoveUser(session.UserID)

	log.Printf("  Session %s left room %s (remaining: %d users)",
		session.ID, room.Name, room.UserCount())

	sm.broadcast(room.Name, &models.ServerEvent{
		Type:   models.EventUserLeft,
		UserID: session.UserID,
	}, nil)
	sm.broadcast(room.Name, &models.ServerEvent{
		Type:  models.EventUsersUpdate,
		Users: room.UserList(),
	}, nil)
}

// safeHandle shields the loop from handler panics: a bad event is logged
// and dropped, the loop and the connection survive.
func (sm *SessionManager) safeHandle(ev *inboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  Panic in event handler (user %s): %v\n%s",
				ev.session.UserID, r, debug.Stack())
		}
	}()
	sm.handleEvent(ev)
}

// handleEvent decodes and dispatches one inbound frame.
func (sm *SessionManager) handleEvent(ev *inboundEvent) {
	session := ev.session
	room := session.Room

	ctx, span := middleware.StartSpan(context.Background(), "WebSocket.ProcessEvent",
		attribute.String("room.name", room.Name),
		attribute.String("user.id", session.UserID),
		attribute.Int("frame.size", len(ev.raw)),
	)
	defer span.End()

	event, err := models.DecodeClientEvent(ev.raw)
	if err != nil {
		log.Printf("⚠️  Dropping malformed event from %s: %v", session.UserID, err)
		middleware.AddSpanError(ctx, err)
		return
	}
	span.SetAttributes(attribute.String("event.type", event.Type))

	switch event.Type {
	case models.EventDrawEvent:
		sm.handleDrawEvent(ctx, session, event.Payload)

	case models.EventCursor:
		sm.broadcast(room.Name, &models.ServerEvent{
			Type:   models.EventCursor,
			UserID: session.UserID,
			Color:  session.User.Color,
			X:      event.X,
			Y:      event.Y,
		}, session)

	case models.EventUndo:
		if undone := room.Log.Undo(); undone != nil {
			sm.broadcast(room.Name, &models.ServerEvent{
				Type: models.EventActionUndone,
				OpID: undone.OpID,
			}, nil)
		}

	case models.EventRedo:
		if redone := room.Log.Redo(); redone != nil {
			sm.broadcast(room.Name, &models.ServerEvent{
				Type:   models.EventActionRedone,
				OpID:   redone.OpID,
				Action: redone,
			}, nil)
		}

	case models.EventRequestFullState:
		sm.sendTo(session, &models.ServerEvent{
			Type:    models.EventFullState,
			Actions: room.Log.Active(),
		})
	}
}

// handleDrawEvent applies the relay rules: a finished stroke is appended to
// the log and echoed to the whole room including its author (the author
// needs the canonical opId/ts to reconcile its optimistic render); a
// preview segment is relayed to everyone except the author.
func (sm *SessionManager) handleDrawEvent(ctx context.Context, session *Session, raw json.RawMessage) {
	payload, err := models.DecodeDrawPayload(raw)
	if err != nil {
		log.Printf("⚠️  Dropping invalid draw_event from %s: %v", session.UserID, err)
		middleware.AddSpanError(ctx, err)
		return
	}

	room := session.Room

	switch p := payload.(type) {
	case *models.Stroke:
		if err := p.Validate(); err != nil {
			log.Printf("⚠️  Dropping invalid stroke from %s: %v", session.UserID, err)
			middleware.AddSpanError(ctx, err)
			return
		}
		if p.Truncate(sm.maxStrokePoints) {
			log.Printf("⚠️  Stroke from %s too large, truncated to %d points",
				session.UserID, sm.maxStrokePoints)
		}
		p.UserID = session.UserID

		entry := room.Log.Append(p)
		middleware.AddSpanEvent(ctx, "stroke.appended",
			attribute.String("op.id", entry.OpID),
			attribute.Int("stroke.points", len(entry.Points)),
		)

		out, err := models.NewDrawEvent(entry)
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return
		}
		sm.broadcast(room.Name, out, nil)

	case *models.PathSegment:
		// Undersized preview fragments are dropped silently: they carry no
		// state and the final stroke supersedes them anyway.
		if err := p.Validate(); err != nil {
			return
		}
		p.UserID = session.UserID

		out, err := models.NewDrawEvent(p)
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return
		}
		sm.broadcast(room.Name, out, session)
	}
}

// broadcast queues an event for every member of a room, skipping the given
// sender when set. Sessions whose buffers are full are evicted: a stalled
// consumer must not block the loop.
func (sm *SessionManager) broadcast(roomName string, event *models.ServerEvent, skip *Session) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️  Failed to marshal %s event: %v", event.Type, err)
		return
	}

	var slow []*Session
	for session := range sm.sessions[roomName] {
		if skip != nil && session == skip {
			continue
		}
		select {
		case session.Send <- data:
		default:
			slow = append(slow, session)
		}
	}
	for _, session := range slow {
		log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
		sm.handleUnregister(session)
	}
}

// sendTo queues an event for one session only.
func (sm *SessionManager) sendTo(session *Session, event *models.ServerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️  Failed to marshal %s event: %v", event.Type, err)
		return
	}
	select {
	case session.Send <- data:
	default:
		log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
		sm.handleUnregister(session)
	}
}

// Session pumps

// ReadPump reads frames off the connection and feeds them to the event
// loop. It owns the read side: deadlines, pong handling, size limit.
func (s *Session) ReadPump() {
	defer func() {
		s.Manager.unregister <- s
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxFrameBytes)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (session %s): %v", s.ID, err)
			}
			break
		}
		s.LastActiveAt = time.Now()
		s.Manager.inbound <- &inboundEvent{session: s, raw: message}
	}
}

// WritePump drains the Send channel onto the connection and keeps the
// connection alive with pings. One message per frame: frames are JSON
// events and must not be concatenated.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
