package vision

import (
	"sync"
	"time"
)

// CountEvent records an occupancy change: the new number of people present
// and when the change was observed.
type CountEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// PresenceMonitor turns the per-frame occupancy count into change events.
// It is strictly edge-triggered: observing the same count again emits
// nothing, so a steady scene stays silent regardless of frame rate.
type PresenceMonitor struct {
	mu         sync.RWMutex
	current    int
	lastLogged int
	lastChange time.Time
}

// NewPresenceMonitor returns a monitor that treats its first observation as
// a change. lastLogged starts at -1, which no real count can equal, so the
// initial count is always emitted even when the room starts empty.
func NewPresenceMonitor() *PresenceMonitor {
	return &PresenceMonitor{lastLogged: -1}
}

// Observe records the occupancy for one processed frame. It returns the
// event to emit and true when the count differs from the last emitted count.
// State advances before the caller writes to any sink: a failed write is the
// sink's problem and is never retried by re-emitting.
func (p *PresenceMonitor) Observe(count int, now time.Time) (CountEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = count
	if count == p.lastLogged {
		return CountEvent{}, false
	}
	p.lastLogged = count
	p.lastChange = now
	return CountEvent{Timestamp: now, Count: count}, true
}

// CurrentCount returns the most recently observed occupancy.
func (p *PresenceMonitor) CurrentCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// LastChange returns the timestamp of the most recent emitted event, zero
// before the first observation.
func (p *PresenceMonitor) LastChange() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastChange
}
