// Package serialmux provides a line-oriented multiplexer for serial
// devices. A single Monitor goroutine owns the port reader and fans
// complete lines out to any number of subscribers; writes are
// serialized through SendCommand. The concrete port is a type
// parameter so tests can run against in-memory ports.
package serialmux

import (
	"bufio"
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// ErrWriteFailed indicates a command was not fully written to the port.
var ErrWriteFailed = fmt.Errorf("serial write failed")

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// SerialMuxInterface captures the operations the daemon needs from a
// serial multiplexer, real or disabled.
type SerialMuxInterface interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
	SendCommand(command string) error
	Monitor(ctx context.Context) error
	Initialize() error
	Close() error
	AttachAdminRoutes(mux *http.ServeMux)
}

// SerialMux multiplexes a single serial port between one reader
// (Monitor) and many line subscribers.
type SerialMux[T SerialPorter] struct {
	port T

	subscribersMu sync.Mutex
	subscribers   map[string]chan string

	commandMu sync.Mutex

	closingMu sync.Mutex
	closing   bool
}

// NewSerialMux wraps an open serial port in a multiplexer.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sub-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Subscribe registers a new line subscriber and returns its ID and
// channel. The channel is buffered; slow subscribers miss lines rather
// than stalling the reader.
func (s *SerialMux[T]) Subscribe() (string, chan string) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	id := randomID()
	ch := make(chan string, 100)
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

// Initialize puts the camera into the streaming configuration the
// daemon expects: clock synced, JSON frames with boxes, confidence and
// timestamps in pixel coordinates, detection stream running.
func (s *SerialMux[T]) Initialize() error {
	// Sync the device clock so frame timestamps line up with ours.
	if err := s.SendCommand(fmt.Sprintf("C=%d", time.Now().Unix())); err != nil {
		return fmt.Errorf("failed to sync clock: %w", err)
	}

	_, offset := time.Now().Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	if err := s.SendCommand(fmt.Sprintf("CZ%s%d", sign, offset/60)); err != nil {
		return fmt.Errorf("failed to set timezone offset: %w", err)
	}

	for _, command := range []string{
		"AX", // restore factory defaults
		"OJ", // JSON frame output
		"OB", // include bounding boxes
		"OC", // include confidence scores
		"OT", // include capture timestamps
		"On", // pixel coordinates
		"OD", // start the detection stream
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send %q: %w", command, err)
		}
	}

	return nil
}

// SendCommand writes a single command line to the port. A trailing
// newline is appended if missing. Writes are serialized so concurrent
// callers cannot interleave partial commands.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}

	n, err := s.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n < len(command) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrWriteFailed, n, len(command))
	}
	return nil
}

// Monitor reads lines from the port until the context is cancelled or
// the port fails, fanning each line out to all subscribers. Subscribers
// with full channels are skipped.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.port)
		// Camera status dumps can exceed the default token size.
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lineChan <- scanner.Text()
		}
		scanErrChan <- scanner.Err()
		close(lineChan)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			s.closingMu.Lock()
			closing := s.closing
			s.closingMu.Unlock()
			if closing {
				return nil
			}
			if err != nil {
				return fmt.Errorf("serial read failed: %w", err)
			}
			return fmt.Errorf("serial port closed")
		case line, ok := <-lineChan:
			if !ok {
				lineChan = nil
				continue
			}
			s.fanOut(line)
		}
	}
}

func (s *SerialMux[T]) fanOut(line string) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			monitoring.Logf("serialmux: subscriber %s buffer full, dropping line", id)
		}
	}
}

// Close marks the mux as closing, closes all subscriber channels and
// then the underlying port.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscribersMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subscribersMu.Unlock()

	return s.port.Close()
}

// AttachAdminRoutes registers the serial debug pages under /debug/:
// an HTML form for sending commands, a POST endpoint behind it, and a
// server-sent-events tail of the raw line stream.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("send-command", "Send a command to the camera", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, nil); err != nil {
			monitoring.Logf("serialmux: render send-command page: %v", err)
		}
	}))

	debug.Handle("send-command-api", "Send a command to the camera (API)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := r.FormValue("command")
		if command == "" {
			http.Error(w, "missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "sent: %s\n", command)
	}))

	debug.Handle("tail", "Tail the raw serial stream", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		id, lines := s.Subscribe()
		defer s.Unsubscribe(id)

		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", line)
				flusher.Flush()
			}
		}
	}))

	debug.Handle("tail.js", "Serial tail page script", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		data, err := adminTemplateFS.ReadFile("templates/tail.js")
		if err != nil {
			http.Error(w, "missing script", http.StatusInternalServerError)
			return
		}
		w.Write(data)
	}))
}
