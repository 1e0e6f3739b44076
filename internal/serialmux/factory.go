package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the named serial device with the given line
// options and wraps it in a SerialMux.
func NewRealSerialMux(portName string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("invalid serial options: %w", err)
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return NewSerialMux(port), nil
}
