package vision

import "sync"

// PipelineStats tracks cumulative pipeline counters. All methods are safe
// for concurrent use; the worker increments, the API and the periodic stats
// logger read snapshots.
type PipelineStats struct {
	mu sync.Mutex

	framesReceived  int64
	framesProcessed int64
	framesSkipped   int64
	framesDropped   int64
	decodeErrors    int64

	detectionsTracked   int64
	malformedDetections int64
	filteredDetections  int64

	eventsEmitted int64
	sinkErrors    int64
}

// StatsSnapshot is a point-in-time copy of the pipeline counters.
type StatsSnapshot struct {
	FramesReceived  int64 `json:"frames_received"`
	FramesProcessed int64 `json:"frames_processed"`
	FramesSkipped   int64 `json:"frames_skipped"`
	FramesDropped   int64 `json:"frames_dropped"`
	DecodeErrors    int64 `json:"decode_errors"`

	DetectionsTracked   int64 `json:"detections_tracked"`
	MalformedDetections int64 `json:"malformed_detections"`
	FilteredDetections  int64 `json:"filtered_detections"`

	EventsEmitted int64 `json:"events_emitted"`
	SinkErrors    int64 `json:"sink_errors"`
}

// NewPipelineStats creates a zeroed stats collector.
func NewPipelineStats() *PipelineStats {
	return &PipelineStats{}
}

// AddReceived counts a frame arriving from a source.
func (s *PipelineStats) AddReceived() {
	s.mu.Lock()
	s.framesReceived++
	s.mu.Unlock()
}

// AddProcessed counts a frame that ran through the tracker, along with the
// detections it carried and those dropped at the decode boundary.
func (s *PipelineStats) AddProcessed(tracked, malformed, filtered int) {
	s.mu.Lock()
	s.framesProcessed++
	s.detectionsTracked += int64(tracked)
	s.malformedDetections += int64(malformed)
	s.filteredDetections += int64(filtered)
	s.mu.Unlock()
}

// AddSkipped counts a frame passed over by the scheduler.
func (s *PipelineStats) AddSkipped() {
	s.mu.Lock()
	s.framesSkipped++
	s.mu.Unlock()
}

// AddDropped counts a frame discarded because the worker queue was full.
func (s *PipelineStats) AddDropped() {
	s.mu.Lock()
	s.framesDropped++
	s.mu.Unlock()
}

// AddDecodeError counts a payload the adapter could not parse.
func (s *PipelineStats) AddDecodeError() {
	s.mu.Lock()
	s.decodeErrors++
	s.mu.Unlock()
}

// AddEventEmitted counts an occupancy change event.
func (s *PipelineStats) AddEventEmitted() {
	s.mu.Lock()
	s.eventsEmitted++
	s.mu.Unlock()
}

// AddSinkError counts a failed event-sink write.
func (s *PipelineStats) AddSinkError() {
	s.mu.Lock()
	s.sinkErrors++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *PipelineStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		FramesReceived:      s.framesReceived,
		FramesProcessed:     s.framesProcessed,
		FramesSkipped:       s.framesSkipped,
		FramesDropped:       s.framesDropped,
		DecodeErrors:        s.decodeErrors,
		DetectionsTracked:   s.detectionsTracked,
		MalformedDetections: s.malformedDetections,
		FilteredDetections:  s.filteredDetections,
		EventsEmitted:       s.eventsEmitted,
		SinkErrors:          s.sinkErrors,
	}
}
