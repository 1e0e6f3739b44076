package network

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeFrameLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("failed to write frame log: %v", err)
	}
	return path
}

func TestReadFrameLogDeliversInOrder(t *testing.T) {
	path := writeFrameLog(t, `# recorded 2025-06-01
{"frame":0,"ts":1748779200.0,"detections":[]}

{"frame":1,"ts":1748779200.1,"detections":[{"box":[10,10,40,80],"confidence":0.9}]}
{"frame":2,"ts":1748779200.2,"detections":[]}
`)

	pipeline := &recordingPipeline{}
	err := ReadFrameLog(context.Background(), ReplayConfig{
		Path:     path,
		Pipeline: pipeline,
	})
	if err != nil {
		t.Fatalf("ReadFrameLog failed: %v", err)
	}

	if got := pipeline.count(); got != 3 {
		t.Fatalf("delivered %d frames, want 3 (comments and blanks skipped)", got)
	}
	if got := pipeline.payload(0); got != `{"frame":0,"ts":1748779200.0,"detections":[]}` {
		t.Errorf("first frame = %q", got)
	}
	for _, ts := range pipeline.times {
		if !ts.IsZero() {
			t.Errorf("replay stamped receive time %v, want zero (pipeline assigns)", ts)
		}
	}
}

func TestReadFrameLogMissingFile(t *testing.T) {
	err := ReadFrameLog(context.Background(), ReplayConfig{
		Path:     filepath.Join(t.TempDir(), "nope.jsonl"),
		Pipeline: &recordingPipeline{},
	})
	if err == nil {
		t.Fatal("ReadFrameLog with missing file succeeded")
	}
}

func TestReadFrameLogRequiresPipeline(t *testing.T) {
	if err := ReadFrameLog(context.Background(), ReplayConfig{Path: "x"}); err == nil {
		t.Fatal("ReadFrameLog without pipeline succeeded")
	}
}

// cancellingPipeline cancels a context after accepting n frames.
type cancellingPipeline struct {
	mu     sync.Mutex
	n      int
	cancel context.CancelFunc
	seen   int
}

func (p *cancellingPipeline) Submit(ctx context.Context, payload []byte, received time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen++
	if p.seen >= p.n {
		p.cancel()
	}
	return nil
}

func TestReadFrameLogLoopStopsOnCancel(t *testing.T) {
	path := writeFrameLog(t, `{"frame":0,"ts":1.0,"detections":[]}
{"frame":1,"ts":1.1,"detections":[]}
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline := &cancellingPipeline{n: 7, cancel: cancel}

	err := ReadFrameLog(ctx, ReplayConfig{
		Path:     path,
		Loop:     true,
		Pipeline: pipeline,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ReadFrameLog returned %v, want context.Canceled", err)
	}
	if pipeline.seen < 7 {
		t.Errorf("loop delivered %d frames before cancel, want >= 7", pipeline.seen)
	}
}

func TestReadFrameLogRealtimePacing(t *testing.T) {
	// Two frames 150ms apart: realtime replay must take at least that.
	path := writeFrameLog(t, `{"frame":0,"ts":1000.000,"detections":[]}
{"frame":1,"ts":1000.150,"detections":[]}
`)

	pipeline := &recordingPipeline{}
	start := time.Now()
	err := ReadFrameLog(context.Background(), ReplayConfig{
		Path:     path,
		Realtime: true,
		Pipeline: pipeline,
	})
	if err != nil {
		t.Fatalf("ReadFrameLog failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("realtime replay took %v, want >= 100ms of pacing", elapsed)
	}
	if got := pipeline.count(); got != 2 {
		t.Errorf("delivered %d frames, want 2", got)
	}
}
