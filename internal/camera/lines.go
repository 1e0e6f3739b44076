package camera

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// Line types produced by ClassifyLine.
const (
	LineDetectionFrame = "detection_frame"
	LineStatus         = "status"
	LineAck            = "ack"
	LineUnknown        = "unknown"
)

// ClassifyLine sorts a raw serial line into one of the known camera
// output types. Detection frames are JSON objects carrying a
// "detections" key; other JSON objects are status responses; bare OK
// and ERR lines are command acknowledgements.
func ClassifyLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return LineUnknown
	}

	if strings.HasPrefix(trimmed, "{") {
		if strings.Contains(trimmed, `"detections"`) {
			return LineDetectionFrame
		}
		return LineStatus
	}

	if trimmed == "OK" || strings.HasPrefix(trimmed, "ERR") {
		return LineAck
	}

	return LineUnknown
}

// currentState accumulates the camera's most recent status responses,
// merged key by key as they arrive.
var (
	stateMu      sync.Mutex
	currentState = make(map[string]any)
)

// HandleStatusResponse merges a JSON status line into the camera state.
func HandleStatusResponse(payload string) error {
	var update map[string]any
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		return fmt.Errorf("failed to parse status response: %w", err)
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	for k, v := range update {
		currentState[k] = v
	}
	return nil
}

// State returns a copy of the accumulated camera status.
func State() map[string]any {
	stateMu.Lock()
	defer stateMu.Unlock()

	out := make(map[string]any, len(currentState))
	for k, v := range currentState {
		out[k] = v
	}
	return out
}

// ResetState clears the accumulated camera status.
func ResetState() {
	stateMu.Lock()
	defer stateMu.Unlock()
	currentState = make(map[string]any)
}

// FrameOffer accepts a raw detection frame payload for processing.
// Offer returns false when the frame was dropped.
type FrameOffer interface {
	Offer(payload []byte, received time.Time) bool
}

// HandleLine routes one serial line: detection frames go to the
// pipeline, status responses update the camera state, everything else
// is logged. Drops are counted by the pipeline itself.
func HandleLine(pipeline FrameOffer, line string) error {
	switch ClassifyLine(line) {
	case LineDetectionFrame:
		pipeline.Offer([]byte(line), time.Time{})
		return nil
	case LineStatus:
		return HandleStatusResponse(line)
	case LineAck:
		if strings.HasPrefix(strings.TrimSpace(line), "ERR") {
			monitoring.Logf("camera: command rejected: %s", strings.TrimSpace(line))
		}
		return nil
	default:
		monitoring.Logf("camera: unrecognized line: %q", line)
		return nil
	}
}
