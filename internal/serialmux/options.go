package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions describes the line settings for a camera serial link. The
// zero value is usable; Normalize fills in the module defaults.
type PortOptions struct {
	BaudRate int    `json:"baud_rate,omitempty"`
	DataBits int    `json:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty"`
}

// Normalize returns a copy of the options with defaults applied and
// fields validated. Unset numeric fields take the camera defaults
// (115200 8N1); out-of-range values are rejected.
func (o PortOptions) Normalize() (PortOptions, error) {
	out := o

	if out.BaudRate == 0 {
		out.BaudRate = DefaultSerialPortMode.BaudRate
	}
	if out.BaudRate < 0 {
		return out, fmt.Errorf("invalid baud rate %d", out.BaudRate)
	}

	if out.DataBits == 0 {
		out.DataBits = DefaultSerialPortMode.DataBits
	}
	if out.DataBits < 5 || out.DataBits > 8 {
		return out, fmt.Errorf("invalid data bits %d", out.DataBits)
	}

	if out.StopBits == 0 {
		out.StopBits = 1
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, fmt.Errorf("invalid stop bits %d", out.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(out.Parity)) {
	case "", "N", "NONE":
		out.Parity = "N"
	case "E", "EVEN":
		out.Parity = "E"
	case "O", "ODD":
		out.Parity = "O"
	default:
		return out, fmt.Errorf("invalid parity %q", out.Parity)
	}

	return out, nil
}

// Equal reports whether two option sets describe the same line settings
// once both are normalized.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

// SerialMode converts the options into a go.bug.st/serial Mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
	}

	switch n.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch n.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}
