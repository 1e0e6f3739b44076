package network

import (
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// PacketStats tracks datagram-level ingest counters: what arrived on
// the wire, before the pipeline decides what to do with it.
type PacketStats struct {
	mu sync.Mutex

	packets int64
	bytes   int64
	dropped int64

	lastLogTime    time.Time
	lastLogPackets int64
	lastLogBytes   int64
	lastLogDropped int64
}

// NewPacketStats returns a zeroed stats collector.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastLogTime: time.Now()}
}

// AddPacket records one received datagram of the given size.
func (s *PacketStats) AddPacket(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
	s.bytes += int64(bytes)
}

// AddDropped records a datagram the pipeline refused.
func (s *PacketStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

// Totals returns cumulative packet, byte and drop counts.
func (s *PacketStats) Totals() (packets, bytes, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets, s.bytes, s.dropped
}

// LogStats logs the rates since the previous call.
func (s *PacketStats) LogStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastLogTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	packets := s.packets - s.lastLogPackets
	bytes := s.bytes - s.lastLogBytes
	dropped := s.dropped - s.lastLogDropped

	monitoring.Logf("Ingest stats: %d frames (%.1f/s), %d bytes, %d dropped [totals: %d frames, %d dropped]",
		packets, float64(packets)/elapsed, bytes, dropped, s.packets, s.dropped)

	s.lastLogTime = now
	s.lastLogPackets = s.packets
	s.lastLogBytes = s.bytes
	s.lastLogDropped = s.dropped
}
