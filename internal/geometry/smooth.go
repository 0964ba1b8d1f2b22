package geometry

import "drawboard/internal/models"

// DefaultTension scales the Catmull-Rom-style control-point offset used by
// Smooth.
const DefaultTension = 0.25

// Smooth converts a reduced polyline into a quadratic-curve control
// sequence. For each interior point it emits one synthetic control point,
// offset from the point along the previous→next direction scaled by
// tension, followed by the point itself. The first and last points are
// preserved exactly; inputs of fewer than three points come back unchanged.
//
// Consumers rendering the result must read it as alternating
// (control, point) pairs after the first element; consumers that only need
// the logical path discard the control points.
func Smooth(points []models.Point, tension float64) []models.Point {
	if len(points) < 3 {
		return points
	}

	smoothed := make([]models.Point, 0, 2*len(points)-2)
	smoothed = append(smoothed, points[0])

	for i := 1; i < len(points)-1; i++ {
		prev, curr, next := points[i-1], points[i], points[i+1]
		control := models.Point{
			X: curr.X - (next.X-prev.X)*tension,
			Y: curr.Y - (next.Y-prev.Y)*tension,
		}
		smoothed = append(smoothed, control, curr)
	}

	return append(smoothed, points[len(points)-1])
}
