package serialmux

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// mockFrameInterval is how often MockSerialPort emits a synthetic
// detection frame.
const mockFrameInterval = 500 * time.Millisecond

// MockSerialPort emits a synthetic detection frame stream for local
// development without camera hardware. Reads come from an internal
// pipe fed by a ticker goroutine; writes land in a temp file so sent
// commands can be inspected.
type MockSerialPort struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	commandFile *os.File

	stopOnce sync.Once
	stop     chan struct{}

	frameMu sync.Mutex
	frame   int64
}

// NewMockSerialPort starts the synthetic frame generator.
func NewMockSerialPort() (*MockSerialPort, error) {
	r, w := io.Pipe()

	f, err := os.CreateTemp("", "mock-camera-commands-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create command log: %w", err)
	}

	m := &MockSerialPort{
		reader:      r,
		writer:      w,
		commandFile: f,
		stop:        make(chan struct{}),
	}

	go m.generate()
	return m, nil
}

func (m *MockSerialPort) generate() {
	ticker := time.NewTicker(mockFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.frameMu.Lock()
			frame := m.frame
			m.frame++
			m.frameMu.Unlock()

			// A single person drifting slowly right across the lobby.
			x := 100 + (frame*7)%600
			line := fmt.Sprintf(
				`{"frame":%d,"ts":%.3f,"detections":[{"box":[%d,180,%d,420],"confidence":0.91}]}`,
				frame, float64(time.Now().UnixNano())/1e9, x, x+120,
			)
			if _, err := m.writer.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
	}
}

// Read implements io.Reader from the synthetic frame stream.
func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

// Write records the command to the log file.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	return m.commandFile.Write(p)
}

// Close stops the generator and releases the pipe and log file.
func (m *MockSerialPort) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.writer.Close()
	m.reader.Close()

	name := m.commandFile.Name()
	if err := m.commandFile.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

// TestableSerialPort is a fully scriptable in-memory port for unit
// tests: reads are served from ReadBuffer, writes append to
// WriteBuffer, and both sides support latency and error injection.
type TestableSerialPort struct {
	mu sync.Mutex

	ReadBuffer  []byte
	WriteBuffer []byte

	ReadError  error
	WriteError error

	ReadLatency  time.Duration
	WriteLatency time.Duration

	// BlockReads makes Read wait until data arrives via AddReadData
	// instead of returning io.EOF on an empty buffer.
	BlockReads bool

	readTimeout time.Duration

	closed bool
	cond   *sync.Cond
}

// NewTestableSerialPort returns an empty scriptable port.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read returns data from ReadBuffer, honoring BlockReads, latency,
// injected errors and the configured read timeout.
func (p *TestableSerialPort) Read(buf []byte) (int, error) {
	if p.ReadLatency > 0 {
		time.Sleep(p.ReadLatency)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ReadError != nil {
		return 0, p.ReadError
	}

	deadline := time.Time{}
	if p.readTimeout > 0 {
		deadline = time.Now().Add(p.readTimeout)
	}

	for len(p.ReadBuffer) == 0 {
		if p.closed {
			return 0, io.EOF
		}
		if !p.BlockReads {
			return 0, io.EOF
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, nil
		}
		p.cond.Wait()
	}

	n := copy(buf, p.ReadBuffer)
	p.ReadBuffer = p.ReadBuffer[n:]
	return n, nil
}

// Write appends to WriteBuffer, honoring latency and injected errors.
func (p *TestableSerialPort) Write(buf []byte) (int, error) {
	if p.WriteLatency > 0 {
		time.Sleep(p.WriteLatency)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.WriteError != nil {
		return 0, p.WriteError
	}

	p.WriteBuffer = append(p.WriteBuffer, buf...)
	return len(buf), nil
}

// Close marks the port closed and wakes any blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *TestableSerialPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

// AddReadData appends data for subsequent Reads and wakes blocked
// readers.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer = append(p.ReadBuffer, data...)
	p.cond.Broadcast()
}

// GetWrittenData returns a copy of everything written so far.
func (p *TestableSerialPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.WriteBuffer))
	copy(out, p.WriteBuffer)
	return out
}

// Reset clears buffers, injected errors and the closed flag.
func (p *TestableSerialPort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer = nil
	p.WriteBuffer = nil
	p.ReadError = nil
	p.WriteError = nil
	p.closed = false
}

// MockOpenCall records one OpenPort invocation on the factory.
type MockOpenCall struct {
	PortName string
	Mode     *SerialPortMode
}

// MockSerialPortFactory returns a scripted port and records every open
// call for assertions.
type MockSerialPortFactory struct {
	mu        sync.Mutex
	Port      SerialPorter
	OpenError error
	OpenCalls []MockOpenCall
}

// OpenPort implements SerialPortFactory.
func (f *MockSerialPortFactory) OpenPort(portName string, mode *SerialPortMode) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{PortName: portName, Mode: mode})
	if f.OpenError != nil {
		return nil, f.OpenError
	}
	if f.Port != nil {
		return f.Port, nil
	}
	return NewTestableSerialPort(), nil
}

// LastCall returns the most recent open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	call := f.OpenCalls[len(f.OpenCalls)-1]
	return &call
}

// Reset clears recorded calls and injected errors.
func (f *MockSerialPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = nil
	f.OpenError = nil
}
