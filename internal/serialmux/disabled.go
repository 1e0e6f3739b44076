package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// DisabledSerialMux satisfies SerialMuxInterface when the daemon runs
// without a serial camera (UDP, replay or pcap sources). Subscribers
// get valid channels that never carry lines; commands fail.
type DisabledSerialMux struct {
	subscribersMu sync.Mutex
	subscribers   map[string]chan string
	closing       bool
}

// NewDisabledSerialMux returns a mux with no backing port.
func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
	}
}

// Subscribe returns a channel that will never receive lines but closes
// cleanly on Unsubscribe or Close.
func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	id := randomID()
	ch := make(chan string, 1)
	d.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	if ch, ok := d.subscribers[id]; ok {
		delete(d.subscribers, id)
		close(ch)
	}
}

// SendCommand always fails: there is no camera attached.
func (d *DisabledSerialMux) SendCommand(command string) error {
	return fmt.Errorf("serial disabled: cannot send %q", command)
}

// Monitor blocks until the context is cancelled.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Initialize is a no-op without a camera.
func (d *DisabledSerialMux) Initialize() error {
	return nil
}

// Close closes all subscriber channels.
func (d *DisabledSerialMux) Close() error {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	d.closing = true
	for id, ch := range d.subscribers {
		delete(d.subscribers, id)
		close(ch)
	}
	return nil
}

// AttachAdminRoutes registers nothing: the serial debug pages only
// exist when a camera is attached.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {}
