package client

import "drawboard/internal/models"

// Canvas is the client's locally-rendered projection of the room: the
// active strokes in draw order plus a per-author overlay holding that
// author's latest live preview segment. It is a pure model: rendering it
// is a function of Snapshot's output, so replaying the same action list
// twice yields the same picture.
//
// Mutations mark the canvas dirty; Snapshot clears the flag. This mirrors
// the one-pending-redraw-per-frame coalescing of the UI layer: however
// bursty the input, a renderer draws at most once per Snapshot.
type Canvas struct {
	strokes  []*models.Stroke
	overlays map[string]*models.PathSegment
	dirty    bool
}

func NewCanvas() *Canvas {
	return &Canvas{overlays: make(map[string]*models.PathSegment)}
}

// AddStroke appends a canonical stroke to the projection.
func (c *Canvas) AddStroke(s *models.Stroke) {
	c.strokes = append(c.strokes, s)
	c.dirty = true
}

// RemoveStroke drops the stroke with the given opId, if present. Used when
// the server announces action_undone.
func (c *Canvas) RemoveStroke(opID string) bool {
	for i, s := range c.strokes {
		if s.OpID == opID {
			c.strokes = append(c.strokes[:i], c.strokes[i+1:]...)
			c.dirty = true
			return true
		}
	}
	return false
}

// Replay replaces the whole projection with the given active-action list.
// Idempotent: replaying the same list twice leaves an identical canvas.
func (c *Canvas) Replay(actions []*models.Stroke) {
	c.strokes = make([]*models.Stroke, 0, len(actions))
	for _, a := range actions {
		if a.Type == models.TypeStroke && !a.Undone {
			c.strokes = append(c.strokes, a)
		}
	}
	c.dirty = true
}

// SetOverlay replaces an author's active preview segment.
func (c *Canvas) SetOverlay(userID string, seg *models.PathSegment) {
	c.overlays[userID] = seg
	c.dirty = true
}

// ClearOverlay removes an author's preview, typically because their
// canonical stroke arrived and supersedes it.
func (c *Canvas) ClearOverlay(userID string) {
	if _, ok := c.overlays[userID]; ok {
		delete(c.overlays, userID)
		c.dirty = true
	}
}

// ClearOverlays drops every preview overlay. Used on full resync.
func (c *Canvas) ClearOverlays() {
	if len(c.overlays) > 0 {
		c.overlays = make(map[string]*models.PathSegment)
		c.dirty = true
	}
}

// Overlay returns an author's active preview segment, or nil.
func (c *Canvas) Overlay(userID string) *models.PathSegment {
	return c.overlays[userID]
}

// Dirty reports whether the projection changed since the last Snapshot.
func (c *Canvas) Dirty() bool { return c.dirty }

// Snapshot returns the current strokes and overlays for rendering and
// clears the dirty flag. The stroke slice is a copy; the strokes
// themselves are shared and must be treated as immutable.
func (c *Canvas) Snapshot() ([]*models.Stroke, map[string]*models.PathSegment) {
	strokes := make([]*models.Stroke, len(c.strokes))
	copy(strokes, c.strokes)

	overlays := make(map[string]*models.PathSegment, len(c.overlays))
	for id, seg := range c.overlays {
		overlays[id] = seg
	}

	c.dirty = false
	return strokes, overlays
}

// StrokeCount reports the number of strokes in the projection.
func (c *Canvas) StrokeCount() int { return len(c.strokes) }
