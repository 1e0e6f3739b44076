package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the interface for serial port operations
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is a SerialPorter that supports read timeouts.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(t time.Duration) error
}

// SerialPortMode represents the configuration mode for a serial port
type SerialPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity represents the parity setting for serial communication
type Parity int

const (
	// NoParity indicates no parity bit
	NoParity Parity = iota
	// OddParity indicates odd parity
	OddParity
	// EvenParity indicates even parity
	EvenParity
)

// StopBits represents the stop bits setting for serial communication
type StopBits int

const (
	// OneStopBit indicates one stop bit
	OneStopBit StopBits = iota
	// OnePointFiveStopBits indicates 1.5 stop bits
	OnePointFiveStopBits
	// TwoStopBits indicates two stop bits
	TwoStopBits
)

// DefaultSerialPortMode is the mode the camera module ships with:
// 115200 baud, 8 data bits, no parity, one stop bit.
var DefaultSerialPortMode = &SerialPortMode{
	BaudRate: 115200,
	DataBits: 8,
	Parity:   NoParity,
	StopBits: OneStopBit,
}

// SerialPortFactory creates serial port connections
type SerialPortFactory interface {
	OpenPort(portName string, mode *SerialPortMode) (SerialPorter, error)
}

// SerialPortOpener is a function type that can open serial ports
type SerialPortOpener func(portName string, mode *SerialPortMode) (SerialPorter, error)

// OpenPort implements SerialPortFactory for SerialPortOpener
func (f SerialPortOpener) OpenPort(portName string, mode *SerialPortMode) (SerialPorter, error) {
	return f(portName, mode)
}
