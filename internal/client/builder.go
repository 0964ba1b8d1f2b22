// Package client implements the client half of the drawing protocol: the
// gesture state machine with optimistic local rendering, the
// reconciliation of server echoes against the pending stroke, the
// throttled live-preview relay and the local canvas projection, plus a
// websocket client wiring them together.
package client

import (
	"time"

	"drawboard/internal/geometry"
	"drawboard/internal/models"

	"github.com/google/uuid"
)

const eraserColor = "#ffffff"

// StrokeBuilder accumulates raw pointer samples during one
// pointer-down-to-up gesture and turns them into a finished stroke.
// It is a two-state machine, Idle ↔ Drawing, driven by Start/Extend/End.
// Not safe for concurrent use; the caller serializes gesture events.
type StrokeBuilder struct {
	drawing bool
	opID    string
	points  []models.Point

	color  string
	size   float64
	eraser bool

	minDistance float64
	tension     float64
}

func NewStrokeBuilder() *StrokeBuilder {
	return &StrokeBuilder{
		color:       "#000000",
		size:        4,
		minDistance: geometry.DefaultMinDistance,
		tension:     geometry.DefaultTension,
	}
}

func (b *StrokeBuilder) SetColor(c string) { b.color = c }
func (b *StrokeBuilder) SetSize(s float64) { b.size = s }

// SetEraser toggles eraser mode: strokes are drawn in the background color
// at double size.
func (b *StrokeBuilder) SetEraser(on bool) { b.eraser = on }

func (b *StrokeBuilder) IsDrawing() bool { return b.drawing }

// OpID returns the correlation id generated for the gesture in progress.
// Live preview segments and the finished stroke share it, so peers can
// associate the two.
func (b *StrokeBuilder) OpID() string { return b.opID }

// CurrentColor returns the effective stroke color for the current mode.
func (b *StrokeBuilder) CurrentColor() string {
	if b.eraser {
		return eraserColor
	}
	return b.color
}

// CurrentSize returns the effective stroke size for the current mode.
func (b *StrokeBuilder) CurrentSize() float64 {
	if b.eraser {
		return b.size * 2
	}
	return b.size
}

// Start begins a gesture: Idle → Drawing, accumulator reset to the single
// starting point, fresh correlation id.
func (b *StrokeBuilder) Start(x, y float64) {
	b.drawing = true
	b.opID = "op_" + uuid.NewString()
	b.points = []models.Point{{X: x, Y: y}}
}

// Extend appends a sample to the gesture and returns the preview segment
// (last accumulated point → new point) for immediate optimistic rendering.
// A no-op returning ok=false while idle.
func (b *StrokeBuilder) Extend(x, y float64) (preview [2]models.Point, ok bool) {
	if !b.drawing {
		return preview, false
	}
	p := models.Point{X: x, Y: y}
	preview = [2]models.Point{b.points[len(b.points)-1], p}
	b.points = append(b.points, p)
	return preview, true
}

// End finishes the gesture: Drawing → Idle. The accumulated samples are
// reduced and, when at least three points survive reduction, smoothed into
// a quadratic-curve control sequence. Returns the finished stroke for
// transmission, or nil when no gesture was in progress.
func (b *StrokeBuilder) End() *models.Stroke {
	if !b.drawing {
		return nil
	}
	b.drawing = false

	points := geometry.Reduce(b.points, b.minDistance)
	if len(points) >= 3 {
		points = geometry.Smooth(points, b.tension)
	}
	b.points = nil

	return &models.Stroke{
		OpID:   b.opID,
		Type:   models.TypeStroke,
		Points: points,
		Color:  b.CurrentColor(),
		Size:   b.CurrentSize(),
		TS:     time.Now().UnixMilli(),
	}
}
