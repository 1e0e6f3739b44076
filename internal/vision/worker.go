package vision

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
	"github.com/banshee-data/presence.report/internal/units"
)

const (
	defaultQueueSize       = 64
	defaultStaleSeenFrames = 90
	defaultStatsInterval   = time.Minute
)

// RawFrame is one undecoded detection payload handed to the worker by a
// source. Received is when the source took delivery; a zero value makes the
// worker stamp it with its own clock.
type RawFrame struct {
	Payload  []byte
	Received time.Time
}

// EventSink receives occupancy change events. Sink failures are logged and
// counted but never retried: delivery is at-least-once from the state
// machine's perspective, and a sink error cannot roll the count back.
type EventSink interface {
	WriteCountEvent(ev CountEvent) error
}

type namedSink struct {
	name string
	sink EventSink
}

// Departure remembers a track that recently left the registry, so the
// dashboard can show who just walked out. Entries expire after the
// configured number of processed frames, mirroring the stale-ID cleanup of
// the annotation layer this replaces.
type Departure struct {
	ID                int        `json:"id"`
	Box               units.Rect `json:"box"`
	LastSeenUnixNanos int64      `json:"last_seen_unix_nanos"`

	atFrame int64
}

// WorkerConfig carries the pipeline knobs. All values are plain data; the
// worker never reads files or the environment.
type WorkerConfig struct {
	SessionID string
	Tracker   TrackerConfig
	Decode    DecodeOptions

	// Skip processes every n-th frame; values below 2 process all frames.
	Skip int

	// StaleSeenFrames is how many processed frames a departed track stays
	// in the recent-departures memory.
	StaleSeenFrames int

	// QueueSize bounds the frame channel. Sources that cannot block drop
	// frames when it is full.
	QueueSize int

	// StatsInterval is the cadence of the periodic pipeline stats log line.
	StatsInterval time.Duration
}

// Worker runs the whole pipeline on a single goroutine: scheduler, decode,
// tracker, presence monitor, event fan-out. Concurrent readers get
// mutex-guarded snapshots; nothing else touches the tracker.
type Worker struct {
	cfg      WorkerConfig
	clock    timeutil.Clock
	tracker  *Tracker
	presence *PresenceMonitor
	stats    *PipelineStats
	frames   chan RawFrame
	sinks    []namedSink

	mu              sync.RWMutex
	frameIndex      int64
	processedFrames int64
	lastTracks      []Track
	departures      []Departure

	// run-loop-local state
	lastWireFrame int64
	lastLogged    StatsSnapshot
}

// WorkerSnapshot is the read surface for HTTP handlers and the live feed.
type WorkerSnapshot struct {
	SessionID        string        `json:"session_id"`
	FrameIndex       int64         `json:"frame_index"`
	FramesProcessed  int64         `json:"frames_processed"`
	CurrentCount     int           `json:"current_count"`
	LastChange       time.Time     `json:"last_change"`
	Tracks           []Track       `json:"tracks"`
	RecentDepartures []Departure   `json:"recent_departures"`
	Stats            StatsSnapshot `json:"stats"`
}

// NewWorker creates a pipeline worker. A nil clock means the real one.
func NewWorker(cfg WorkerConfig, clock timeutil.Clock) *Worker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.Skip < 1 {
		cfg.Skip = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.StaleSeenFrames <= 0 {
		cfg.StaleSeenFrames = defaultStaleSeenFrames
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = defaultStatsInterval
	}
	return &Worker{
		cfg:      cfg,
		clock:    clock,
		tracker:  NewTracker(cfg.Tracker),
		presence: NewPresenceMonitor(),
		stats:    NewPipelineStats(),
		frames:   make(chan RawFrame, cfg.QueueSize),
	}
}

// AddSink registers an event sink under a name used in error logs. Sinks
// must be added before Run starts.
func (w *Worker) AddSink(name string, s EventSink) {
	w.sinks = append(w.sinks, namedSink{name: name, sink: s})
}

// Offer enqueues a frame without blocking. It returns false and counts a
// drop when the queue is full; sources driven by a socket or a serial line
// use this so slow processing never backs up into the transport.
func (w *Worker) Offer(payload []byte, received time.Time) bool {
	select {
	case w.frames <- RawFrame{Payload: payload, Received: received}:
		return true
	default:
		w.stats.AddDropped()
		return false
	}
}

// Submit enqueues a frame, blocking until there is room or ctx ends. Replay
// sources use this so paced playback delivers every frame.
func (w *Worker) Submit(ctx context.Context, payload []byte, received time.Time) error {
	select {
	case w.frames <- RawFrame{Payload: payload, Received: received}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes frames until ctx is cancelled. It is the only goroutine that
// mutates tracker or presence state.
func (w *Worker) Run(ctx context.Context) error {
	monitoring.Logf("pipeline worker started (session=%s skip=%d)", w.cfg.SessionID, w.cfg.Skip)
	ticker := w.clock.NewTicker(w.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logStats()
			monitoring.Logf("pipeline worker stopped (session=%s)", w.cfg.SessionID)
			return nil
		case f := <-w.frames:
			w.handleFrame(f)
		case <-ticker.C():
			w.logStats()
		}
	}
}

// handleFrame advances the pipeline by one frame. Skipped frames touch
// nothing: no decode, no tracker update, no presence observation.
func (w *Worker) handleFrame(f RawFrame) {
	w.stats.AddReceived()
	idx := w.frameIndex

	if !ShouldProcess(idx, w.cfg.Skip) {
		w.stats.AddSkipped()
		w.advance(nil, false)
		return
	}

	now := f.Received
	if now.IsZero() {
		now = w.clock.Now()
	}

	decoded, err := ParseFrame(f.Payload, w.cfg.Decode)
	if err != nil {
		w.stats.AddDecodeError()
		monitoring.Logf("frame %d: %v", idx, err)
		w.advance(nil, false)
		return
	}
	if decoded.Malformed > 0 {
		monitoring.Logf("frame %d: dropped %d malformed detections", idx, decoded.Malformed)
	}
	w.noteWireFrame(decoded.Meta.Frame)

	tracks := w.tracker.Update(decoded.Detections, now)

	ev, changed := w.presence.Observe(len(tracks), now)
	if changed {
		w.stats.AddEventEmitted()
		monitoring.Logf("occupancy changed: count=%d frame=%d", ev.Count, idx)
		for _, ns := range w.sinks {
			if err := ns.sink.WriteCountEvent(ev); err != nil {
				w.stats.AddSinkError()
				monitoring.Logf("sink %s: write count event: %v", ns.name, err)
			}
		}
	}

	w.stats.AddProcessed(len(decoded.Detections), decoded.Malformed, decoded.Filtered)
	w.advance(tracks, true)
}

// advance moves the frame cursor and, for processed frames, publishes the
// new track snapshot and departure memory.
func (w *Worker) advance(tracks []Track, processed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.frameIndex++
	if !processed {
		return
	}
	w.processedFrames++
	w.recordDeparturesLocked(tracks)
	w.lastTracks = tracks
}

// recordDeparturesLocked diffs the previous track set against the current
// one and expires old entries. Caller holds w.mu; lastTracks is sorted by
// ID, so departures append deterministically.
func (w *Worker) recordDeparturesLocked(cur []Track) {
	curIDs := make(map[int]bool, len(cur))
	for _, tr := range cur {
		curIDs[tr.ID] = true
	}
	for _, prev := range w.lastTracks {
		if !curIDs[prev.ID] {
			w.departures = append(w.departures, Departure{
				ID:                prev.ID,
				Box:               prev.Box,
				LastSeenUnixNanos: prev.LastUnixNanos,
				atFrame:           w.processedFrames,
			})
		}
	}

	cutoff := w.processedFrames - int64(w.cfg.StaleSeenFrames)
	trim := 0
	for trim < len(w.departures) && w.departures[trim].atFrame <= cutoff {
		trim++
	}
	if trim > 0 {
		w.departures = append([]Departure(nil), w.departures[trim:]...)
	}
}

// noteWireFrame logs gaps in the detector-reported frame numbering. The
// advisory number never drives the scheduler, but a gap usually means the
// transport is losing datagrams.
func (w *Worker) noteWireFrame(frame int64) {
	if frame > 0 && w.lastWireFrame > 0 && frame != w.lastWireFrame+1 {
		monitoring.Logf("detector frame gap: %d -> %d", w.lastWireFrame, frame)
	}
	if frame > 0 {
		w.lastWireFrame = frame
	}
}

func (w *Worker) logStats() {
	snap := w.stats.Snapshot()
	monitoring.Logf("pipeline: +%d frames (+%d processed, +%d skipped, +%d dropped), +%d detections, +%d events, %d total sink errors",
		snap.FramesReceived-w.lastLogged.FramesReceived,
		snap.FramesProcessed-w.lastLogged.FramesProcessed,
		snap.FramesSkipped-w.lastLogged.FramesSkipped,
		snap.FramesDropped-w.lastLogged.FramesDropped,
		snap.DetectionsTracked-w.lastLogged.DetectionsTracked,
		snap.EventsEmitted-w.lastLogged.EventsEmitted,
		snap.SinkErrors,
	)
	w.lastLogged = snap
}

// Snapshot returns the current pipeline state for concurrent readers.
func (w *Worker) Snapshot() WorkerSnapshot {
	w.mu.RLock()
	tracks := append([]Track(nil), w.lastTracks...)
	departures := append([]Departure(nil), w.departures...)
	idx := w.frameIndex
	processed := w.processedFrames
	w.mu.RUnlock()

	return WorkerSnapshot{
		SessionID:        w.cfg.SessionID,
		FrameIndex:       idx,
		FramesProcessed:  processed,
		CurrentCount:     w.presence.CurrentCount(),
		LastChange:       w.presence.LastChange(),
		Tracks:           tracks,
		RecentDepartures: departures,
		Stats:            w.stats.Snapshot(),
	}
}

// Stats exposes the pipeline counters, primarily for tests and health
// endpoints.
func (w *Worker) Stats() StatsSnapshot {
	return w.stats.Snapshot()
}
