// Command replay-server serves a recorded detection log over UDP.
//
// This tool loads a JSONL detection log (one frame object per line, as
// written by gen-detlog or captured from a live detector) and sends one
// datagram per frame to a daemon's UDP listener at a fixed rate, so a
// daemon under test can ingest it through its normal -source=udp path.
//
// Usage:
//
//	go run ./cmd/tools/replay-server [flags]
//
// Flags:
//
//	-addr      Destination address (default: 127.0.0.1:9944)
//	-log       Path to the detection log to replay (required)
//	-fps       Frames per second to send (default: 10)
//	-loop      Loop playback when reaching end (default: false)
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9944", "Destination address")
	logPath := flag.String("log", "", "Path to detection log to replay (required)")
	fps := flag.Float64("fps", 10, "Frames per second to send")
	loop := flag.Bool("loop", false, "Loop playback when reaching end")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("Error: -log flag is required")
	}
	if *fps <= 0 {
		log.Fatal("Error: -fps must be positive")
	}

	frames, span, err := loadLog(*logPath)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	if len(frames) == 0 {
		log.Fatal("Log contains no frames")
	}
	log.Printf("Log info: %d frames, %.2f seconds recorded", len(frames), span)

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Replaying %s to %s at %.1f fps (loop=%v)", *logPath, *addr, *fps, *loop)
	sent, err := replayLoop(ctx, conn, frames, *fps, *loop)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	if ctx.Err() != nil {
		log.Printf("Shutting down...")
	}
	log.Printf("Replay complete: %d frames sent", sent)
}

// loadLog reads a JSONL detection log, skipping blank and comment lines.
// Each remaining line must at least be a JSON object; the recorded time
// span in seconds is derived from the first and last "ts" fields (zero
// when the log carries no timestamps).
func loadLog(path string) ([][]byte, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var frames [][]byte
	var firstTS, lastTS float64
	lineNo := 0

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var meta struct {
			TS float64 `json:"ts"`
		}
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if meta.TS > 0 {
			if firstTS == 0 {
				firstTS = meta.TS
			}
			lastTS = meta.TS
		}
		frames = append(frames, []byte(line))
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}

	span := 0.0
	if lastTS > firstTS {
		span = lastTS - firstTS
	}
	return frames, span, nil
}

// replayLoop sends one datagram per frame at the requested rate until the
// log is exhausted (or forever with loop) or ctx is canceled. Returns the
// number of frames sent.
func replayLoop(ctx context.Context, conn net.Conn, frames [][]byte, fps float64, loop bool) (int, error) {
	if len(frames) == 0 {
		return 0, nil
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	sent := 0
	for i := 0; ; i++ {
		if i >= len(frames) {
			if !loop {
				return sent, nil
			}
			i = 0
		}
		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
			if _, err := conn.Write(frames[i]); err != nil {
				return sent, fmt.Errorf("send frame %d: %w", i, err)
			}
			sent++
		}
	}
}
