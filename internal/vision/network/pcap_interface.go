package network

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PCAPPacket represents a single packet read from a PCAP file.
type PCAPPacket struct {
	Data      []byte
	Timestamp time.Time
}

// PCAPReader defines an interface for reading detection frame packets
// from PCAP files. This abstraction enables unit testing without real
// PCAP files or the pcap build tag.
type PCAPReader interface {
	// Open opens a PCAP file for reading.
	Open(filename string) error

	// SetBPFFilter sets a BPF filter on the PCAP reader.
	SetBPFFilter(filter string) error

	// NextPacket returns the next packet's UDP payload.
	// Returns nil, nil when no more packets are available.
	NextPacket() (*PCAPPacket, error)

	// Close closes the PCAP reader and releases resources.
	Close()
}

// ProcessPCAPPackets drains a PCAPReader into the pipeline, stamping
// each frame with its capture timestamp. Returns the number of packets
// delivered.
func ProcessPCAPPackets(ctx context.Context, reader PCAPReader, pipeline FramePipeline, stats PacketStatsInterface) (int, error) {
	if stats == nil {
		stats = &noopStats{}
	}

	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		default:
		}

		pkt, err := reader.NextPacket()
		if err != nil {
			return delivered, err
		}
		if pkt == nil {
			return delivered, nil
		}
		if len(pkt.Data) == 0 {
			continue
		}

		stats.AddPacket(len(pkt.Data))

		if pipeline != nil {
			frame := make([]byte, len(pkt.Data))
			copy(frame, pkt.Data)
			if !pipeline.Offer(frame, pkt.Timestamp) {
				stats.AddDropped()
				continue
			}
		}
		delivered++
	}
}

// MockPCAPReader implements PCAPReader for testing.
type MockPCAPReader struct {
	mu sync.Mutex

	// Packets holds the packets to return from NextPacket.
	Packets []PCAPPacket

	// ReadIndex tracks the current position in Packets.
	ReadIndex int

	// OpenError is returned by Open if set.
	OpenError error

	// FilterError is returned by SetBPFFilter if set.
	FilterError error

	// OpenedFile records the filename passed to Open.
	OpenedFile string

	// AppliedFilter records the filter passed to SetBPFFilter.
	AppliedFilter string

	// Closed indicates whether Close was called.
	Closed bool
}

// NewMockPCAPReader creates a new MockPCAPReader with the given packets.
func NewMockPCAPReader(packets []PCAPPacket) *MockPCAPReader {
	return &MockPCAPReader{Packets: packets}
}

// Open records the filename and returns any configured error.
func (m *MockPCAPReader) Open(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenedFile = filename
	return m.OpenError
}

// SetBPFFilter records the filter and returns any configured error.
func (m *MockPCAPReader) SetBPFFilter(filter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppliedFilter = filter
	return m.FilterError
}

// NextPacket returns the next packet from the mock buffer.
func (m *MockPCAPReader) NextPacket() (*PCAPPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return nil, errors.New("reader closed")
	}
	if m.ReadIndex >= len(m.Packets) {
		return nil, nil // EOF - no more packets
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return &pkt, nil
}

// Close marks the reader as closed.
func (m *MockPCAPReader) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
}

// AddPacket adds a packet to the mock reader.
func (m *MockPCAPReader) AddPacket(data []byte, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Packets = append(m.Packets, PCAPPacket{
		Data:      data,
		Timestamp: timestamp,
	})
}

// Reset resets the mock reader state for reuse.
func (m *MockPCAPReader) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadIndex = 0
	m.Closed = false
	m.OpenedFile = ""
	m.AppliedFilter = ""
	m.OpenError = nil
	m.FilterError = nil
}
