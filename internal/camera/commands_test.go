package camera

import "testing"

func TestIsValidThresholdCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		{"confidence threshold", "T=0.50", true},
		{"confidence zero", "T=0", true},
		{"confidence one", "T=1", true},
		{"iou threshold", "U=0.45", true},
		{"above one", "T=1.5", false},
		{"negative", "T=-0.1", false},
		{"not a number", "T=abc", false},
		{"missing value", "T=", false},
		{"missing equals", "T0.5", false},
		{"wrong letter", "X=0.5", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidThresholdCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsValidThresholdCommand(%q) = %v, want %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestIsValidResolutionCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		{"deployment resolution", "R=960x540", true},
		{"small", "R=16x16", true},
		{"large", "R=4096x4096", true},
		{"too small", "R=8x540", false},
		{"too large", "R=960x5000", false},
		{"missing height", "R=960", false},
		{"extra dimension", "R=960x540x3", false},
		{"not numbers", "R=axb", false},
		{"query not set", "R?", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidResolutionCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsValidResolutionCommand(%q) = %v, want %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestIsValidRateCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		{"typical rate", "F=15", true},
		{"minimum", "F=1", true},
		{"maximum", "F=120", true},
		{"zero", "F=0", false},
		{"too fast", "F=121", false},
		{"fractional", "F=12.5", false},
		{"not a number", "F=fast", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidRateCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsValidRateCommand(%q) = %v, want %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestIsValidClockSyncCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		{"unix seconds", "C=1748779200", true},
		{"zero", "C=0", false},
		{"negative", "C=-5", false},
		{"not a number", "C=now", false},
		{"query not set", "C?", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidClockSyncCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsValidClockSyncCommand(%q) = %v, want %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestIsAllowedCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		// Static commands.
		{"module info", "??", true},
		{"firmware version", "?V", true},
		{"start stream", "OD", true},
		{"stop stream", "Od", true},
		{"factory reset", "AX", true},
		{"save config", "A!", true},
		{"trailing whitespace trimmed", "OD\n", true},

		// Dynamic commands.
		{"confidence threshold", "T=0.35", true},
		{"iou threshold", "U=0.45", true},
		{"resolution", "R=1280x720", true},
		{"frame rate", "F=30", true},
		{"clock sync", "C=1748779200", true},

		// Rejected.
		{"unknown code", "ZZ", false},
		{"case matters", "od", false},
		{"bad threshold", "T=2.0", false},
		{"bad resolution", "R=0x0", false},
		{"shell injection", "OD; rm -rf /", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowedCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsAllowedCommand(%q) = %v, want %v", tt.cmd, got, tt.expected)
			}
		})
	}
}
