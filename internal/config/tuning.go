package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and inspection at runtime.
type TuningConfig struct {
	// Tracker params
	MaxMatchDistance *float64 `json:"max_match_distance,omitempty"`
	MaxDisappeared   *int     `json:"max_disappeared,omitempty"`

	// Pipeline params
	SkipFrames      *int    `json:"skip_frames,omitempty"`
	StaleSeenFrames *int    `json:"stale_seen_frames,omitempty"`
	QueueSize       *int    `json:"queue_size,omitempty"`
	StatsInterval   *string `json:"stats_interval,omitempty"` // duration string like "60s"

	// Frame decode params
	FrameWidth      *int     `json:"frame_width,omitempty"`
	FrameHeight     *int     `json:"frame_height,omitempty"`
	MinConfidence   *float64 `json:"min_confidence,omitempty"`
	NormalizedBoxes *bool    `json:"normalized_boxes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/network/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MaxMatchDistance != nil && *c.MaxMatchDistance < 0 {
		return fmt.Errorf("max_match_distance must be non-negative, got %f", *c.MaxMatchDistance)
	}

	if c.MaxDisappeared != nil && *c.MaxDisappeared < 1 {
		return fmt.Errorf("max_disappeared must be at least 1, got %d", *c.MaxDisappeared)
	}

	if c.SkipFrames != nil && *c.SkipFrames < 0 {
		return fmt.Errorf("skip_frames must be non-negative, got %d", *c.SkipFrames)
	}

	if c.StaleSeenFrames != nil && *c.StaleSeenFrames < 1 {
		return fmt.Errorf("stale_seen_frames must be at least 1, got %d", *c.StaleSeenFrames)
	}

	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *c.QueueSize)
	}

	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	if c.FrameWidth != nil && *c.FrameWidth < 1 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}

	if c.FrameHeight != nil && *c.FrameHeight < 1 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}

	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}

	return nil
}

// GetMaxMatchDistance returns the max_match_distance value or the default.
func (c *TuningConfig) GetMaxMatchDistance() float64 {
	if c.MaxMatchDistance == nil {
		return 70.0 // default: generous for a lobby camera at 960x540
	}
	return *c.MaxMatchDistance
}

// GetMaxDisappeared returns the max_disappeared value or the default.
func (c *TuningConfig) GetMaxDisappeared() int {
	if c.MaxDisappeared == nil {
		return 12
	}
	return *c.MaxDisappeared
}

// GetSkipFrames returns the skip_frames value or the default.
func (c *TuningConfig) GetSkipFrames() int {
	if c.SkipFrames == nil {
		return 1 // default: process every frame
	}
	return *c.SkipFrames
}

// GetStaleSeenFrames returns the stale_seen_frames value or the default.
func (c *TuningConfig) GetStaleSeenFrames() int {
	if c.StaleSeenFrames == nil {
		return 90
	}
	return *c.StaleSeenFrames
}

// GetQueueSize returns the queue_size value or the default.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 64
	}
	return *c.QueueSize
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 960
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 540
	}
	return *c.FrameHeight
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0 // default: keep everything the camera reports
	}
	return *c.MinConfidence
}

// GetNormalizedBoxes returns the normalized_boxes value or the default.
func (c *TuningConfig) GetNormalizedBoxes() bool {
	if c.NormalizedBoxes == nil {
		return false // default: cameras send pixel coordinates
	}
	return *c.NormalizedBoxes
}
