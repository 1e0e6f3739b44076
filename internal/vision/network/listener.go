// Package network provides the ingest paths that carry detection
// frames into the pipeline: a UDP listener for cameras on the LAN, a
// frame-log replayer, and offline PCAP reading.
package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// FramePipeline accepts raw detection frame payloads. Offer returns
// false when the frame was dropped (queue full).
type FramePipeline interface {
	Offer(payload []byte, received time.Time) bool
}

// BlockingFramePipeline accepts frames losslessly, blocking until the
// pipeline has room or the context ends.
type BlockingFramePipeline interface {
	Submit(ctx context.Context, payload []byte, received time.Time) error
}

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	LogStats()
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) LogStats()           {}

// UDPListener receives one detection frame per datagram and hands each
// payload to the pipeline.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       PacketStatsInterface
	pipeline    FramePipeline

	connMu sync.Mutex
	conn   *net.UDPConn
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Pipeline    FramePipeline
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to
	// avoid nil checks in the receive path.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		pipeline:    config.Pipeline,
	}
}

// Addr returns the bound address once Start has opened the socket, or
// nil before that. Useful with ":0" listen addresses.
func (l *UDPListener) Addr() net.Addr {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start begins listening for detection frame datagrams and processing
// them until the context is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	go l.startStatsLogging(ctx)

	// Detection frames are small JSON lines, but leave headroom for
	// cameras that batch several detections per frame.
	buffer := make([]byte, 64*1024)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, sender, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			l.stats.AddPacket(n)

			if l.pipeline == nil {
				continue
			}

			// The read buffer is reused; the pipeline queues payloads
			// asynchronously, so hand it a copy.
			payload := make([]byte, n)
			copy(payload, buffer[:n])

			if !l.pipeline.Offer(payload, time.Now()) {
				l.stats.AddDropped()
				monitoring.Logf("UDP frame from %v dropped: pipeline queue full", sender)
			}
		}
	}
}

// startStatsLogging starts a goroutine that periodically logs packet statistics
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a
	// long silence on first run. Then continue on the configured
	// interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Close closes the UDP listener and releases resources
func (l *UDPListener) Close() error {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
