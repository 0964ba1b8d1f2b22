package collaboration_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"drawboard/internal/api"
	"drawboard/internal/canvas"
	"drawboard/internal/collaboration"
	"drawboard/internal/models"

	"github.com/gorilla/websocket"
)

const eventWait = 2 * time.Second

func newTestServer(t *testing.T, maxStrokePoints int) *httptest.Server {
	t.Helper()

	registry := canvas.NewRegistry()
	manager := collaboration.NewSessionManager(registry, maxStrokePoints)
	manager.Start()

	wsHandler := collaboration.NewWebSocketHandler(manager, "main")
	srv := httptest.NewServer(api.SetupRoutes(api.NewHandler(wsHandler, manager)))
	t.Cleanup(srv.Close)
	return srv
}

func dialRaw(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if room != "" {
		u += "?room=" + room
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}
}

func sendDraw(t *testing.T, conn *websocket.Conn, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	sendEvent(t, conn, &models.ClientEvent{Type: models.EventDrawEvent, Payload: raw})
}

// waitForEvent reads frames until one of the wanted type arrives,
// discarding everything else.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) *models.ServerEvent {
	t.Helper()

	deadline := time.Now().Add(eventWait)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		ev, err := models.DecodeServerEvent(raw)
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("timed out waiting for %s", eventType)
	return nil
}

// expectNoEvent asserts that no frame of the given type arrives within the
// window; other frames are ignored.
//
// Waiting out the window with a read deadline would poison the connection:
// gorilla/websocket caches the first read error (including a deadline
// timeout) and returns it from every later read. Instead, sleep through the
// window and then flush with a request_full_state round trip — the session
// manager queues outbound frames in processing order, so anything produced
// within the window is delivered before the full_state reply.
func expectNoEvent(t *testing.T, conn *websocket.Conn, eventType string, window time.Duration) {
	t.Helper()

	time.Sleep(window)
	sendEvent(t, conn, &models.ClientEvent{Type: models.EventRequestFullState})

	conn.SetReadDeadline(time.Now().Add(eventWait))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("flushing while expecting no %s: %v", eventType, err)
		}
		ev, err := models.DecodeServerEvent(raw)
		if err != nil {
			t.Fatalf("malformed frame while waiting: %v", err)
		}
		if ev.Type == eventType {
			t.Fatalf("received unexpected %s event: %+v", eventType, ev)
		}
		if ev.Type == models.EventFullState {
			return
		}
	}
}

func decodeStroke(t *testing.T, ev *models.ServerEvent) *models.Stroke {
	t.Helper()
	payload, err := models.DecodeDrawPayload(ev.Payload)
	if err != nil {
		t.Fatalf("failed to decode draw payload: %v", err)
	}
	s, ok := payload.(*models.Stroke)
	if !ok {
		t.Fatalf("draw payload = %T, want *Stroke", payload)
	}
	return s
}

func testPoints(n int) []models.Point {
	pts := make([]models.Point, n)
	for i := range pts {
		pts[i] = models.Point{X: float64(i * 10), Y: float64(i * 10)}
	}
	return pts
}

func TestJoinReceivesInit(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialRaw(t, srv, "init-room")

	init := waitForEvent(t, conn, models.EventInit)
	if init.UserID == "" {
		t.Error("init without userId")
	}
	if init.Color == "" {
		t.Error("init without color")
	}
	if len(init.History) != 0 {
		t.Errorf("fresh room init history = %v, want empty", init.History)
	}
	if len(init.Users) != 1 || init.Users[0].ID != init.UserID {
		t.Errorf("init users = %v, want just the joiner", init.Users)
	}
}

func TestStrokeEchoedToAuthorWithIdentity(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialRaw(t, srv, "echo-room")
	init := waitForEvent(t, conn, models.EventInit)

	sendDraw(t, conn, &models.Stroke{
		Type:   models.TypeStroke,
		Points: testPoints(4),
		Color:  "#112233",
		Size:   3,
	})

	echo := decodeStroke(t, waitForEvent(t, conn, models.EventDrawEvent))
	if echo.OpID == "" {
		t.Error("echoed stroke without server-assigned opId")
	}
	if echo.TS == 0 {
		t.Error("echoed stroke without server-assigned ts")
	}
	if echo.UserID != init.UserID {
		t.Errorf("echoed stroke userId = %q, want sender %q", echo.UserID, init.UserID)
	}
	if len(echo.Points) != 4 {
		t.Errorf("echoed stroke has %d points, want 4", len(echo.Points))
	}
}

func TestJoinAfterStrokesReceivesHistory(t *testing.T) {
	srv := newTestServer(t, 0)
	a := dialRaw(t, srv, "history-room")
	waitForEvent(t, a, models.EventInit)

	sendDraw(t, a, &models.Stroke{Type: models.TypeStroke, Points: testPoints(3), Color: "#000", Size: 2})
	first := decodeStroke(t, waitForEvent(t, a, models.EventDrawEvent))

	b := dialRaw(t, srv, "history-room")
	init := waitForEvent(t, b, models.EventInit)
	if len(init.History) != 1 {
		t.Fatalf("late joiner history has %d entries, want 1", len(init.History))
	}
	if init.History[0].OpID != first.OpID {
		t.Errorf("history opId = %q, want %q", init.History[0].OpID, first.OpID)
	}
}

func TestMalformedEventsDroppedConnectionSurvives(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialRaw(t, srv, "malformed-room")
	waitForEvent(t, conn, models.EventInit)

	// None of these may crash the handler or produce a broadcast.
	conn.WriteMessage(websocket.TextMessage, []byte(`{{{not json`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"x":1}`))
	sendEvent(t, conn, &models.ClientEvent{Type: "teleport"})
	sendDraw(t, conn, map[string]interface{}{"color": "#000"})               // payload without type
	sendDraw(t, conn, &models.Stroke{Type: models.TypeStroke, Color: "#0"}) // empty point list
	expectNoEvent(t, conn, models.EventDrawEvent, 200*time.Millisecond)

	// The connection is still usable afterwards.
	sendDraw(t, conn, &models.Stroke{Type: models.TypeStroke, Points: testPoints(2), Color: "#000", Size: 1})
	echo := decodeStroke(t, waitForEvent(t, conn, models.EventDrawEvent))
	if len(echo.Points) != 2 {
		t.Errorf("echo after malformed input has %d points, want 2", len(echo.Points))
	}
}

func TestOversizedStrokeTruncated(t *testing.T) {
	srv := newTestServer(t, 5)
	conn := dialRaw(t, srv, "cap-room")
	waitForEvent(t, conn, models.EventInit)

	sendDraw(t, conn, &models.Stroke{Type: models.TypeStroke, Points: testPoints(12), Color: "#000", Size: 1})

	echo := decodeStroke(t, waitForEvent(t, conn, models.EventDrawEvent))
	if len(echo.Points) != 5 {
		t.Errorf("oversized stroke echoed with %d points, want truncated to 5", len(echo.Points))
	}
}

func TestPathSegmentRelayRules(t *testing.T) {
	srv := newTestServer(t, 0)
	a := dialRaw(t, srv, "segment-room")
	initA := waitForEvent(t, a, models.EventInit)
	b := dialRaw(t, srv, "segment-room")
	waitForEvent(t, b, models.EventInit)

	// A 1-point segment is rejected at the boundary and never relayed.
	sendDraw(t, a, &models.PathSegment{
		Type:   models.TypePathSegment,
		Points: testPoints(1),
		Color:  "#000",
		Size:   2,
	})
	expectNoEvent(t, b, models.EventDrawEvent, 200*time.Millisecond)

	// A valid segment reaches the peer but is never echoed to its sender.
	sendDraw(t, a, &models.PathSegment{
		OpID:   "op_live",
		Type:   models.TypePathSegment,
		Points: testPoints(2),
		Color:  "#000",
		Size:   2,
	})

	ev := waitForEvent(t, b, models.EventDrawEvent)
	payload, err := models.DecodeDrawPayload(ev.Payload)
	if err != nil {
		t.Fatalf("failed to decode relayed payload: %v", err)
	}
	seg, ok := payload.(*models.PathSegment)
	if !ok {
		t.Fatalf("relayed payload = %T, want *PathSegment", payload)
	}
	if seg.UserID != initA.UserID {
		t.Errorf("relayed segment userId = %q, want sender %q", seg.UserID, initA.UserID)
	}
	expectNoEvent(t, a, models.EventDrawEvent, 200*time.Millisecond)
}

func TestCursorRelayedToPeersOnly(t *testing.T) {
	srv := newTestServer(t, 0)
	a := dialRaw(t, srv, "cursor-room")
	initA := waitForEvent(t, a, models.EventInit)
	b := dialRaw(t, srv, "cursor-room")
	waitForEvent(t, b, models.EventInit)

	sendEvent(t, a, &models.ClientEvent{Type: models.EventCursor, X: 42, Y: 17})

	cur := waitForEvent(t, b, models.EventCursor)
	if cur.UserID != initA.UserID {
		t.Errorf("cursor userId = %q, want %q", cur.UserID, initA.UserID)
	}
	if cur.Color != initA.Color {
		t.Errorf("cursor color = %q, want sender's %q", cur.Color, initA.Color)
	}
	if cur.X != 42 || cur.Y != 17 {
		t.Errorf("cursor position = (%v,%v), want (42,17)", cur.X, cur.Y)
	}
	expectNoEvent(t, a, models.EventCursor, 200*time.Millisecond)
}

func TestUndoRedoBroadcast(t *testing.T) {
	srv := newTestServer(t, 0)
	a := dialRaw(t, srv, "undo-room")
	waitForEvent(t, a, models.EventInit)
	b := dialRaw(t, srv, "undo-room")
	waitForEvent(t, b, models.EventInit)

	var opIDs []string
	for i := 0; i < 2; i++ {
		sendDraw(t, a, &models.Stroke{Type: models.TypeStroke, Points: testPoints(3 + i), Color: "#000", Size: 1})
		opIDs = append(opIDs, decodeStroke(t, waitForEvent(t, a, models.EventDrawEvent)).OpID)
	}

	// Undo removes the most recent action for every member.
	sendEvent(t, a, &models.ClientEvent{Type: models.EventUndo})
	undone := waitForEvent(t, b, models.EventActionUndone)
	if undone.OpID != opIDs[1] {
		t.Errorf("action_undone opId = %q, want most recent %q", undone.OpID, opIDs[1])
	}

	// Any user can redo, not just the one who drew or undid.
	sendEvent(t, b, &models.ClientEvent{Type: models.EventRedo})
	redone := waitForEvent(t, a, models.EventActionRedone)
	if redone.OpID != opIDs[1] {
		t.Errorf("action_redone opId = %q, want %q", redone.OpID, opIDs[1])
	}
	if redone.Action == nil || redone.Action.Undone {
		t.Errorf("action_redone carried %+v, want the restored action", redone.Action)
	}

	// A new append destroys redo history: undo, draw, then redo is a no-op.
	sendEvent(t, a, &models.ClientEvent{Type: models.EventUndo})
	waitForEvent(t, b, models.EventActionUndone)
	sendDraw(t, a, &models.Stroke{Type: models.TypeStroke, Points: testPoints(2), Color: "#000", Size: 1})
	waitForEvent(t, b, models.EventDrawEvent)
	sendEvent(t, a, &models.ClientEvent{Type: models.EventRedo})
	expectNoEvent(t, b, models.EventActionRedone, 200*time.Millisecond)
}

func TestUndoOnEmptyRoomIsNoOp(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialRaw(t, srv, "empty-undo-room")
	waitForEvent(t, conn, models.EventInit)

	sendEvent(t, conn, &models.ClientEvent{Type: models.EventUndo})
	expectNoEvent(t, conn, models.EventActionUndone, 200*time.Millisecond)

	sendEvent(t, conn, &models.ClientEvent{Type: models.EventRedo})
	expectNoEvent(t, conn, models.EventActionRedone, 200*time.Millisecond)
}

func TestFullStateMatchesActiveSet(t *testing.T) {
	srv := newTestServer(t, 0)
	conn := dialRaw(t, srv, "fullstate-room")
	waitForEvent(t, conn, models.EventInit)

	var opIDs []string
	for i := 0; i < 3; i++ {
		sendDraw(t, conn, &models.Stroke{Type: models.TypeStroke, Points: testPoints(2 + i), Color: "#000", Size: 1})
		opIDs = append(opIDs, decodeStroke(t, waitForEvent(t, conn, models.EventDrawEvent)).OpID)
	}
	sendEvent(t, conn, &models.ClientEvent{Type: models.EventUndo})
	waitForEvent(t, conn, models.EventActionUndone)

	sendEvent(t, conn, &models.ClientEvent{Type: models.EventRequestFullState})
	state := waitForEvent(t, conn, models.EventFullState)

	if len(state.Actions) != 2 {
		t.Fatalf("full_state has %d actions, want 2 active", len(state.Actions))
	}
	for i, want := range opIDs[:2] {
		if state.Actions[i].OpID != want {
			t.Errorf("full_state action %d = %q, want %q (append order)", i, state.Actions[i].OpID, want)
		}
		if state.Actions[i].Undone {
			t.Errorf("full_state action %d is undone", i)
		}
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	srv := newTestServer(t, 0)
	a := dialRaw(t, srv, "iso-one")
	waitForEvent(t, a, models.EventInit)
	b := dialRaw(t, srv, "iso-two")
	waitForEvent(t, b, models.EventInit)

	sendDraw(t, a, &models.Stroke{Type: models.TypeStroke, Points: testPoints(2), Color: "#000", Size: 1})
	waitForEvent(t, a, models.EventDrawEvent)

	expectNoEvent(t, b, models.EventDrawEvent, 200*time.Millisecond)
}

func TestMembershipNotifications(t *testing.T) {
	srv := newTestServer(t, 0)
	a := dialRaw(t, srv, "members-room")
	waitForEvent(t, a, models.EventInit)

	b := dialRaw(t, srv, "members-room")
	initB := waitForEvent(t, b, models.EventInit)

	joined := waitForEvent(t, a, models.EventUserJoined)
	if joined.UserID != initB.UserID {
		t.Errorf("user_joined userId = %q, want %q", joined.UserID, initB.UserID)
	}
	update := waitForEvent(t, a, models.EventUsersUpdate)
	if len(update.Users) != 2 {
		t.Errorf("users_update has %d users, want 2", len(update.Users))
	}

	b.Close()
	left := waitForEvent(t, a, models.EventUserLeft)
	if left.UserID != initB.UserID {
		t.Errorf("user_left userId = %q, want %q", left.UserID, initB.UserID)
	}
	update = waitForEvent(t, a, models.EventUsersUpdate)
	if len(update.Users) != 1 {
		t.Errorf("users_update after leave has %d users, want 1", len(update.Users))
	}
}
