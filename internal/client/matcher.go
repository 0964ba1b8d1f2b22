package client

import (
	"time"

	"drawboard/internal/models"
)

// DefaultMatchWindow is how far apart the pending stroke's timestamp and a
// canonical echo's timestamp may be and still count as the same stroke.
// Wide enough to tolerate transport delay and clock skew between client
// and server stamping.
const DefaultMatchWindow = time.Second

// Matcher decides whether an incoming canonical stroke is the server's
// echo of this client's own pending stroke. At most one pending stroke
// exists at a time; starting a new gesture before the previous echo
// arrives risks matching the wrong one, so callers serialize gestures.
type Matcher struct {
	window  time.Duration
	pending *models.Stroke
}

func NewMatcher(window time.Duration) *Matcher {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return &Matcher{window: window}
}

// SetPending stores the just-finished local stroke awaiting its echo.
func (m *Matcher) SetPending(s *models.Stroke) { m.pending = s }

// Pending returns the outstanding stroke, or nil.
func (m *Matcher) Pending() *models.Stroke { return m.pending }

// Clear drops the pending slot. Used on reconnect, when the echo can no
// longer be trusted to arrive.
func (m *Matcher) Clear() { m.pending = nil }

// OnStroke inspects a canonical stroke from the server. If it matches the
// pending stroke (same point count, timestamps within the window), the
// server-assigned opId is adopted onto the pending stroke (for later
// undo/redo targeting), the slot is cleared and true is returned: the
// caller must not render the stroke a second time. Otherwise false: render
// it as a new stroke.
//
// Point count plus timestamp is a deliberately coarse fingerprint; two
// same-length strokes finished within the window can collide and produce a
// duplicate render.
func (m *Matcher) OnStroke(incoming *models.Stroke) bool {
	if m.pending == nil {
		return false
	}
	if len(incoming.Points) != len(m.pending.Points) {
		return false
	}
	delta := incoming.TS - m.pending.TS
	if delta < 0 {
		delta = -delta
	}
	if delta >= m.window.Milliseconds() {
		return false
	}

	m.pending.OpID = incoming.OpID
	m.pending = nil
	return true
}
