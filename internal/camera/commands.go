// Package camera implements the ASCII command protocol and line
// classification for the detection camera module. Commands are short
// two-character codes, optionally with a parameter after '='.
package camera

import (
	"strconv"
	"strings"
)

// allowedCommands lists every fixed command the daemon will forward to
// the camera. Anything not listed here (or matched by a parameterized
// validator) is rejected before it reaches the serial port.
var allowedCommands = []string{
	// Device Identity
	"??", // query module information
	"?V", // read firmware version
	"?B", // read firmware build number
	"?N", // read serial number
	"?M", // read detection model name and revision
	"?R", // read last reset reason

	// Output Settings
	"O?", // query output settings
	"OJ", // JSON frame output
	"OB", // include bounding boxes
	"Ob", // omit bounding boxes
	"OC", // include confidence scores
	"Oc", // omit confidence scores
	"OT", // include capture timestamps
	"Ot", // omit capture timestamps
	"ON", // normalized [0,1] coordinates
	"On", // pixel coordinates
	"OD", // start the detection stream
	"Od", // stop the detection stream

	// Detector Control
	"D?", // query detector settings
	"D+", // resume the detector
	"D-", // pause the detector

	// Frame Geometry and Rate
	"R?", // query capture resolution
	"F?", // query detector frame rate

	// Status LED
	"OL", // status LED on
	"Ol", // status LED off

	// Clock
	"C?", // query device clock

	// Persistent Memory
	"A!", // save current configuration
	"A?", // query saved configuration
	"AX", // restore factory defaults
}

// IsValidThresholdCommand reports whether cmd sets a detector
// threshold: "T=<v>" for confidence or "U=<v>" for IoU, with v in
// [0,1].
func IsValidThresholdCommand(cmd string) bool {
	if len(cmd) < 3 || cmd[1] != '=' {
		return false
	}
	if cmd[0] != 'T' && cmd[0] != 'U' {
		return false
	}
	v, err := strconv.ParseFloat(cmd[2:], 64)
	if err != nil {
		return false
	}
	return v >= 0 && v <= 1
}

// IsValidResolutionCommand reports whether cmd sets the capture
// resolution: "R=<width>x<height>" with both dimensions in [16,4096].
func IsValidResolutionCommand(cmd string) bool {
	if !strings.HasPrefix(cmd, "R=") {
		return false
	}
	dims := strings.Split(cmd[2:], "x")
	if len(dims) != 2 {
		return false
	}
	for _, d := range dims {
		v, err := strconv.Atoi(d)
		if err != nil || v < 16 || v > 4096 {
			return false
		}
	}
	return true
}

// IsValidRateCommand reports whether cmd sets the detector frame rate:
// "F=<fps>" with fps in [1,120].
func IsValidRateCommand(cmd string) bool {
	if !strings.HasPrefix(cmd, "F=") {
		return false
	}
	v, err := strconv.Atoi(cmd[2:])
	if err != nil {
		return false
	}
	return v >= 1 && v <= 120
}

// IsValidClockSyncCommand reports whether cmd syncs the device clock:
// "C=<unix seconds>" with a positive integer value.
func IsValidClockSyncCommand(cmd string) bool {
	if !strings.HasPrefix(cmd, "C=") {
		return false
	}
	v, err := strconv.ParseInt(cmd[2:], 10, 64)
	if err != nil {
		return false
	}
	return v > 0
}

// IsAllowedCommand reports whether cmd may be sent to the camera:
// either a fixed command from the allow-list or a valid parameterized
// command.
func IsAllowedCommand(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	for _, allowed := range allowedCommands {
		if cmd == allowed {
			return true
		}
	}
	return IsValidThresholdCommand(cmd) ||
		IsValidResolutionCommand(cmd) ||
		IsValidRateCommand(cmd) ||
		IsValidClockSyncCommand(cmd)
}
