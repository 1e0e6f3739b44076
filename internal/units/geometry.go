// Package units provides the coordinate spaces shared by the detection
// pipeline: pixel-space boxes and centroids, normalized [0,1] boxes as some
// detectors emit them, and the conversions between the two.
package units

import "math"

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box. Coordinates are pixels unless a
// conversion function says otherwise; (X1,Y1) is the top-left corner.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// FrameSize is the pixel dimensions of the detector's frame.
type FrameSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Center returns the centroid of the box.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Valid reports whether the box has finite coordinates and positive extent.
func (r Rect) Valid() bool {
	for _, v := range [4]float64{r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.X2 > r.X1 && r.Y2 > r.Y1
}

// Clamp constrains the box to the frame bounds. A box entirely outside the
// frame clamps to a zero-extent box on the nearest edge, which Valid rejects.
func (r Rect) Clamp(fs FrameSize) Rect {
	w, h := float64(fs.Width), float64(fs.Height)
	return Rect{
		X1: math.Max(0, math.Min(r.X1, w)),
		Y1: math.Max(0, math.Min(r.Y1, h)),
		X2: math.Max(0, math.Min(r.X2, w)),
		Y2: math.Max(0, math.Min(r.Y2, h)),
	}
}

// IsNormalized reports whether every coordinate lies in [0,1], the convention
// detectors use when they emit frame-relative boxes.
func (r Rect) IsNormalized() bool {
	for _, v := range [4]float64{r.X1, r.Y1, r.X2, r.Y2} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// FromNormalized scales a [0,1] frame-relative box to pixel coordinates.
func FromNormalized(r Rect, fs FrameSize) Rect {
	w, h := float64(fs.Width), float64(fs.Height)
	return Rect{
		X1: r.X1 * w,
		Y1: r.Y1 * h,
		X2: r.X2 * w,
		Y2: r.Y2 * h,
	}
}

// ToNormalized scales a pixel box to [0,1] frame-relative coordinates.
// Zero frame dimensions return the box unchanged.
func ToNormalized(r Rect, fs FrameSize) Rect {
	if fs.Width == 0 || fs.Height == 0 {
		return r
	}
	w, h := float64(fs.Width), float64(fs.Height)
	return Rect{
		X1: r.X1 / w,
		Y1: r.Y1 / h,
		X2: r.X2 / w,
		Y2: r.Y2 / h,
	}
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
