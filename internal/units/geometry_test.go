package units

import (
	"math"
	"testing"
)

func TestRectCenter(t *testing.T) {
	r := Rect{X1: 10, Y1: 20, X2: 30, Y2: 60}
	c := r.Center()
	if c.X != 20 || c.Y != 40 {
		t.Errorf("Center() = (%v,%v), want (20,40)", c.X, c.Y)
	}
}

func TestRectValid(t *testing.T) {
	tests := []struct {
		name string
		r    Rect
		want bool
	}{
		{"normal box", Rect{0, 0, 10, 10}, true},
		{"inverted x", Rect{10, 0, 0, 10}, false},
		{"inverted y", Rect{0, 10, 10, 0}, false},
		{"zero extent", Rect{5, 5, 5, 5}, false},
		{"nan coordinate", Rect{math.NaN(), 0, 10, 10}, false},
		{"inf coordinate", Rect{0, 0, math.Inf(1), 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRectClamp(t *testing.T) {
	fs := FrameSize{Width: 960, Height: 540}

	r := Rect{X1: -20, Y1: 100, X2: 1000, Y2: 600}.Clamp(fs)
	want := Rect{X1: 0, Y1: 100, X2: 960, Y2: 540}
	if r != want {
		t.Errorf("Clamp() = %+v, want %+v", r, want)
	}

	// Fully outside collapses to a zero-extent box, which is invalid.
	gone := Rect{X1: -50, Y1: -50, X2: -10, Y2: -10}.Clamp(fs)
	if gone.Valid() {
		t.Errorf("box clamped off-frame should be invalid, got %+v", gone)
	}
}

func TestNormalizedRoundTrip(t *testing.T) {
	fs := FrameSize{Width: 960, Height: 540}
	n := Rect{X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 1.0}

	if !n.IsNormalized() {
		t.Fatalf("IsNormalized() = false for %+v", n)
	}

	px := FromNormalized(n, fs)
	want := Rect{X1: 240, Y1: 270, X2: 720, Y2: 540}
	if px != want {
		t.Errorf("FromNormalized() = %+v, want %+v", px, want)
	}
	if px.IsNormalized() {
		t.Error("pixel box should not report as normalized")
	}

	back := ToNormalized(px, fs)
	if math.Abs(back.X1-n.X1) > 1e-9 || math.Abs(back.Y2-n.Y2) > 1e-9 {
		t.Errorf("ToNormalized() = %+v, want %+v", back, n)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b Point
		want float64
	}{
		{Point{0, 0}, Point{3, 4}, 5},
		{Point{10, 10}, Point{15, 12}, math.Hypot(5, 2)},
		{Point{1, 1}, Point{1, 1}, 0},
	}

	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Distance(%v,%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
