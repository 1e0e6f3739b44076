package network

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// maxReplayGap caps the sleep between two frames in realtime replay so
// recording gaps do not stall playback.
const maxReplayGap = 5 * time.Second

// ReplayConfig configures frame-log replay.
type ReplayConfig struct {
	// Path is the JSONL frame log to replay, one detection frame per
	// line. Blank lines and lines starting with '#' are skipped.
	Path string

	// Loop restarts the log from the beginning when it ends.
	Loop bool

	// Realtime paces frames by the gaps between their "ts" fields.
	// When false the log replays as fast as the pipeline accepts it.
	Realtime bool

	// Pipeline receives every frame. Replay is lossless: delivery
	// blocks until the pipeline has room.
	Pipeline BlockingFramePipeline
}

// ReadFrameLog replays a recorded detection frame log into the
// pipeline until the log ends (or forever with Loop) or the context is
// cancelled.
func ReadFrameLog(ctx context.Context, cfg ReplayConfig) error {
	if cfg.Pipeline == nil {
		return fmt.Errorf("replay requires a pipeline")
	}

	pass := 0
	for {
		n, err := replayOnce(ctx, cfg)
		if err != nil {
			return err
		}
		pass++

		if !cfg.Loop {
			monitoring.Logf("Replay complete: %d frames from %s", n, cfg.Path)
			return nil
		}
		monitoring.Logf("Replay pass %d complete: %d frames from %s, looping", pass, n, cfg.Path)
	}
}

func replayOnce(ctx context.Context, cfg ReplayConfig) (int, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open frame log %s: %w", cfg.Path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	frames := 0
	lastTS := -1.0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if cfg.Realtime {
			if err := paceFrame(ctx, line, &lastTS); err != nil {
				return frames, err
			}
		}

		payload := []byte(line)
		if err := cfg.Pipeline.Submit(ctx, payload, time.Time{}); err != nil {
			return frames, err
		}
		frames++
	}

	if err := scanner.Err(); err != nil {
		return frames, fmt.Errorf("failed to read frame log %s: %w", cfg.Path, err)
	}
	return frames, nil
}

// paceFrame sleeps for the recorded gap between the previous frame and
// this one.
func paceFrame(ctx context.Context, line string, lastTS *float64) error {
	var stamp struct {
		TS float64 `json:"ts"`
	}
	if err := json.Unmarshal([]byte(line), &stamp); err != nil || stamp.TS <= 0 {
		return nil
	}

	if *lastTS > 0 && stamp.TS > *lastTS {
		gap := time.Duration((stamp.TS - *lastTS) * float64(time.Second))
		if gap > maxReplayGap {
			gap = maxReplayGap
		}
		timer := time.NewTimer(gap)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	*lastTS = stamp.TS
	return nil
}
