// Package geometry holds the pure point-sequence transforms applied to a
// finished gesture before it goes on the wire: distance-based reduction and
// quadratic-curve smoothing.
package geometry

import (
	"math"

	"drawboard/internal/models"
)

// DefaultMinDistance is the minimum spacing between kept points when
// reducing a raw gesture.
const DefaultMinDistance = 1.5

// Reduce thins a raw pointer-sample sequence with a single greedy
// left-to-right pass: the first and last points are always kept, an interior
// point only when it is at least minDist away from the last kept point.
// Inputs of two or fewer points come back unchanged. The pass is idempotent:
// reducing an already-reduced sequence with the same minDist is a no-op.
func Reduce(points []models.Point, minDist float64) []models.Point {
	if len(points) <= 2 {
		return points
	}

	reduced := make([]models.Point, 0, len(points))
	reduced = append(reduced, points[0])

	for i := 1; i < len(points)-1; i++ {
		last := reduced[len(reduced)-1]
		if distance(last, points[i]) >= minDist {
			reduced = append(reduced, points[i])
		}
	}

	return append(reduced, points[len(points)-1])
}

func distance(a, b models.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
