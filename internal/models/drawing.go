package models

import (
	"encoding/json"
	"fmt"
)

// Draw payload discriminators. Every draw_event payload carries one of
// these in its "type" field.
const (
	TypeStroke      = "stroke"
	TypePathSegment = "path_segment"
)

// DefaultMaxStrokePoints is the hard cap on a stroke's point list.
// Oversized strokes are truncated at the boundary, not rejected.
const DefaultMaxStrokePoints = 10000

// Point is a single sample in canvas-local coordinates. The caller is
// responsible for DPI/pan/zoom adjustment before points reach this layer.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one completed freehand gesture. Once accepted into a room's
// action log it is immutable except for the Undone flag.
type Stroke struct {
	OpID   string  `json:"opId,omitempty"`
	UserID string  `json:"userId,omitempty"`
	Type   string  `json:"type"`
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
	TS     int64   `json:"ts,omitempty"` // unix milliseconds
	Undone bool    `json:"undone,omitempty"`
}

// PathSegment is an ephemeral preview fragment of an in-progress gesture.
// It is never stored; the final Stroke for the same OpID supersedes it.
type PathSegment struct {
	OpID   string  `json:"opId,omitempty"`
	UserID string  `json:"userId,omitempty"`
	Type   string  `json:"type"`
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
}

// DrawPayload is the tagged union of draw_event payloads. Boundary code
// decodes raw JSON into one of the variants exactly once; core logic never
// handles a maybe-missing field.
type DrawPayload interface {
	Kind() string
}

func (s *Stroke) Kind() string      { return TypeStroke }
func (p *PathSegment) Kind() string { return TypePathSegment }

// Validate checks the minimum shape of a finished stroke.
func (s *Stroke) Validate() error {
	if len(s.Points) == 0 {
		return fmt.Errorf("stroke has no points")
	}
	return nil
}

// Truncate caps the point list at max points and reports whether anything
// was cut. Truncation is graceful degradation: the stroke stays usable.
func (s *Stroke) Truncate(max int) bool {
	if max > 0 && len(s.Points) > max {
		s.Points = s.Points[:max]
		return true
	}
	return false
}

// Validate checks that a preview segment carries at least two points.
// Shorter segments are dropped silently at the boundary.
func (p *PathSegment) Validate() error {
	if len(p.Points) < 2 {
		return fmt.Errorf("path segment has %d points, need at least 2", len(p.Points))
	}
	return nil
}

// DecodeDrawPayload turns a raw draw_event payload into its typed variant.
func DecodeDrawPayload(raw []byte) (DrawPayload, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed draw payload: %w", err)
	}

	switch probe.Type {
	case TypeStroke:
		var s Stroke
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("malformed stroke: %w", err)
		}
		return &s, nil
	case TypePathSegment:
		var p PathSegment
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed path segment: %w", err)
		}
		return &p, nil
	case "":
		return nil, fmt.Errorf("draw payload missing type")
	default:
		return nil, fmt.Errorf("unknown draw payload type %q", probe.Type)
	}
}
