// Package vision implements the people-presence pipeline: decoding detection
// frames produced by an edge detector, associating detections into tracks by
// centroid distance, and turning the active-track count into occupancy events.
//
// The pipeline is deliberately detector-agnostic. Whatever runs the model
// (a smart camera on a serial line, a YOLO process publishing UDP datagrams,
// or a recorded log) hands this package one JSON payload per video frame;
// everything after that boundary is deterministic.
package vision

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/presence.report/internal/units"
)

// Detection is one person detection within a frame, already converted to
// pixel coordinates and validated.
type Detection struct {
	Box        units.Rect `json:"box"`
	Confidence float64    `json:"confidence"`
}

// FrameMeta carries the detector-reported identity of a frame. The frame
// number and timestamp come from the device clock and are advisory; the
// worker assigns its own frame indices by arrival order.
type FrameMeta struct {
	Frame     int64     `json:"frame"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeOptions controls how raw detection payloads become Detections.
type DecodeOptions struct {
	// Frame is the detector's frame size in pixels. When set, boxes are
	// clamped to it, and normalized input is scaled by it.
	Frame units.FrameSize

	// NormalizedBoxes indicates the detector emits [0,1] frame-relative
	// coordinates rather than pixels.
	NormalizedBoxes bool

	// MinConfidence drops detections below this score at the ingest
	// boundary. Zero keeps everything; the tracker itself never filters
	// by confidence.
	MinConfidence float64
}

// DecodedFrame is the result of parsing one detection payload.
type DecodedFrame struct {
	Meta       FrameMeta
	Detections []Detection

	// Malformed counts detection records dropped for structural reasons
	// (wrong box arity, inverted or off-frame boxes, out-of-range scores).
	Malformed int

	// Filtered counts detections dropped by MinConfidence.
	Filtered int
}

// wire structures for the one-JSON-object-per-frame detector protocol:
//
//	{"frame": 1042, "ts": 1748779200.25,
//	 "detections": [{"box": [x1,y1,x2,y2], "confidence": 0.93}, ...]}
type wireFrame struct {
	Frame      int64           `json:"frame"`
	TS         float64         `json:"ts"`
	Detections []wireDetection `json:"detections"`
}

type wireDetection struct {
	Box        []float64 `json:"box"`
	Confidence float64   `json:"confidence"`
}

// ParseFrame decodes one detection-frame payload. A payload that is not a
// valid frame object fails as a whole; individual malformed detection records
// are dropped and counted while the rest of the frame proceeds. A frame with
// zero detections is valid input.
func ParseFrame(payload []byte, opts DecodeOptions) (DecodedFrame, error) {
	var wf wireFrame
	if err := json.Unmarshal(payload, &wf); err != nil {
		return DecodedFrame{}, fmt.Errorf("parse detection frame: %w", err)
	}

	out := DecodedFrame{
		Meta:       FrameMeta{Frame: wf.Frame, Timestamp: wireTimestamp(wf.TS)},
		Detections: make([]Detection, 0, len(wf.Detections)),
	}

	for _, wd := range wf.Detections {
		box, ok := decodeBox(wd.Box, opts)
		if !ok || wd.Confidence < 0 || wd.Confidence > 1 {
			out.Malformed++
			continue
		}
		if opts.MinConfidence > 0 && wd.Confidence < opts.MinConfidence {
			out.Filtered++
			continue
		}
		out.Detections = append(out.Detections, Detection{Box: box, Confidence: wd.Confidence})
	}

	return out, nil
}

// decodeBox converts one wire box to a validated pixel-space Rect.
func decodeBox(coords []float64, opts DecodeOptions) (units.Rect, bool) {
	if len(coords) != 4 {
		return units.Rect{}, false
	}
	r := units.Rect{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	if !r.Valid() {
		return units.Rect{}, false
	}
	if opts.NormalizedBoxes {
		if !r.IsNormalized() {
			return units.Rect{}, false
		}
		r = units.FromNormalized(r, opts.Frame)
	}
	if opts.Frame.Width > 0 && opts.Frame.Height > 0 {
		r = r.Clamp(opts.Frame)
	}
	if !r.Valid() {
		return units.Rect{}, false
	}
	return r, true
}

// wireTimestamp converts a detector "ts" value (Unix seconds, fractional
// part carried) to a time.Time. Zero means the detector sent none.
func wireTimestamp(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
