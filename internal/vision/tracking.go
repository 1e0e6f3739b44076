package vision

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/units"
)

// TrackerConfig holds the association and lifecycle parameters for the
// centroid tracker.
type TrackerConfig struct {
	// MaxMatchDistance is the largest centroid distance, in pixels, at
	// which a detection may bind to an existing track. Zero degenerates to
	// exact-centroid matching.
	MaxMatchDistance float64 `json:"max_match_distance"`

	// MaxDisappeared is the number of consecutive updates a track may go
	// unmatched before it is deleted.
	MaxDisappeared int `json:"max_disappeared"`
}

// DefaultTrackerConfig returns the parameters tuned for a lobby camera at
// 960x540: people-sized movement between processed frames stays well under
// 70px, and 12 missed updates absorbs brief occlusions without holding ghost
// tracks open.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxMatchDistance: 70,
		MaxDisappeared:   12,
	}
}

// Track is one tracked person. ID assignment is monotonic from zero and IDs
// are never reused within a tracker's lifetime, so a given ID always refers
// to the same physical continuity of detections.
type Track struct {
	ID          int         `json:"id"`
	Centroid    units.Point `json:"centroid"`
	Box         units.Rect  `json:"box"`
	Disappeared int         `json:"disappeared"`

	FirstUnixNanos int64 `json:"first_unix_nanos"`
	LastUnixNanos  int64 `json:"last_unix_nanos"`
}

// Tracker maintains identity continuity across frames by nearest-centroid
// association. Update is called from the single pipeline worker; the read
// accessors take snapshots and are safe from any goroutine.
type Tracker struct {
	mu              sync.RWMutex
	tracks          map[int]*Track
	nextID          int
	config          TrackerConfig
	lastUpdateNanos int64
}

// NewTracker creates a tracker. Out-of-range parameters are clamped:
// a negative match distance becomes zero, a non-positive disappearance
// budget becomes one (delete on first miss).
func NewTracker(config TrackerConfig) *Tracker {
	if config.MaxMatchDistance < 0 {
		config.MaxMatchDistance = 0
	}
	if config.MaxDisappeared < 1 {
		config.MaxDisappeared = 1
	}
	return &Tracker{
		tracks: make(map[int]*Track),
		config: config,
	}
}

// candidate is one (track, detection) pairing under consideration during
// association.
type candidate struct {
	trackID int
	detIdx  int
	dist    float64
}

// Update advances the registry by one processed frame and returns the
// resulting active tracks, sorted by ID.
//
// Association is greedy in order of globally smallest remaining distance:
// all gated (track, detection) pairs are ranked by distance, equal distances
// broken by ascending track ID then ascending detection index, and each
// track and each detection binds at most once. Unmatched tracks age and are
// deleted once Disappeared reaches MaxDisappeared; unmatched detections
// register new tracks in input order.
func (t *Tracker) Update(detections []Detection, now time.Time) []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	nanos := now.UnixNano()
	t.lastUpdateNanos = nanos

	// No detections: every track ages.
	if len(detections) == 0 {
		t.ageAllLocked()
		return t.snapshotLocked()
	}

	// Empty registry: every detection starts a track.
	if len(t.tracks) == 0 {
		for _, d := range detections {
			t.registerLocked(d, nanos)
		}
		return t.snapshotLocked()
	}

	trackIDs := t.sortedIDsLocked()

	candidates := make([]candidate, 0, len(trackIDs)*len(detections))
	for _, id := range trackIDs {
		c := t.tracks[id].Centroid
		for j, d := range detections {
			candidates = append(candidates, candidate{
				trackID: id,
				detIdx:  j,
				dist:    units.Distance(c, d.Box.Center()),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		return a.detIdx < b.detIdx
	})

	matchedTracks := make(map[int]bool, len(trackIDs))
	matchedDets := make(map[int]bool, len(detections))
	for _, c := range candidates {
		if c.dist > t.config.MaxMatchDistance {
			// Candidates are sorted; nothing closer remains.
			break
		}
		if matchedTracks[c.trackID] || matchedDets[c.detIdx] {
			continue
		}
		tr := t.tracks[c.trackID]
		d := detections[c.detIdx]
		tr.Centroid = d.Box.Center()
		tr.Box = d.Box
		tr.Disappeared = 0
		tr.LastUnixNanos = nanos
		matchedTracks[c.trackID] = true
		matchedDets[c.detIdx] = true
	}

	for _, id := range trackIDs {
		if !matchedTracks[id] {
			t.ageTrackLocked(id)
		}
	}

	for j, d := range detections {
		if !matchedDets[j] {
			t.registerLocked(d, nanos)
		}
	}

	return t.snapshotLocked()
}

// registerLocked starts a new track for a detection. Caller holds t.mu.
func (t *Tracker) registerLocked(d Detection, nanos int64) {
	id := t.nextID
	t.nextID++
	t.tracks[id] = &Track{
		ID:             id,
		Centroid:       d.Box.Center(),
		Box:            d.Box,
		FirstUnixNanos: nanos,
		LastUnixNanos:  nanos,
	}
}

// ageTrackLocked increments a track's miss counter and deletes it once the
// disappearance budget is spent. Caller holds t.mu.
func (t *Tracker) ageTrackLocked(id int) {
	tr := t.tracks[id]
	tr.Disappeared++
	if tr.Disappeared >= t.config.MaxDisappeared {
		delete(t.tracks, id)
	}
}

func (t *Tracker) ageAllLocked() {
	for _, id := range t.sortedIDsLocked() {
		t.ageTrackLocked(id)
	}
}

func (t *Tracker) sortedIDsLocked() []int {
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (t *Tracker) snapshotLocked() []Track {
	out := make([]Track, 0, len(t.tracks))
	for _, id := range t.sortedIDsLocked() {
		out = append(out, *t.tracks[id])
	}
	return out
}

// Snapshot returns value copies of all live tracks, sorted by ID.
func (t *Tracker) Snapshot() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// ActiveCount returns the number of live tracks. A track still inside its
// disappearance budget counts even while unmatched.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// GetTrack returns a copy of the track with the given ID.
func (t *Tracker) GetTrack(id int) (Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *tr, true
}

// Config returns the tracker's parameters.
func (t *Tracker) Config() TrackerConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// LastUpdate returns the timestamp of the most recent Update call.
func (t *Tracker) LastUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastUpdateNanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, t.lastUpdateNanos)
}
