// Package model contains domain models passed between pipeline stages.
//
// Values in this package are created once by the stage that owns them and
// are treated as immutable by every stage downstream.
package model

import "math"

// Point is a position in frame-normalized coordinates: (0,0) is the top-left
// corner of the frame and (1,1) the bottom-right.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// BBox is a normalized bounding box anchored at its top-left corner.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box has a positive area.
func (b BBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Center returns the centre of the box.
func (b BBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns the box area, zero for degenerate boxes.
func (b BBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width * b.Height
}

// IoU returns the intersection-over-union of two boxes.
func (b BBox) IoU(o BBox) float64 {
	x1 := math.Max(b.X, o.X)
	y1 := math.Max(b.Y, o.Y)
	x2 := math.Min(b.X+b.Width, o.X+o.Width)
	y2 := math.Min(b.Y+b.Height, o.Y+o.Height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Zone is the court half a position falls into.
type Zone string

const (
	ZoneNet  Zone = "net"
	ZoneBack Zone = "back"
)

// courtSplitY separates the net half from the back half.
const courtSplitY = 0.5

// ZoneOf classifies a normalized position into a court zone.
func ZoneOf(p Point) Zone {
	if p.Y < courtSplitY {
		return ZoneNet
	}
	return ZoneBack
}
