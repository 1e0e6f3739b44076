// Command gen-detlog generates synthetic detection logs for testing replay.
//
// Output is the detector wire format the daemon consumes: one JSON frame
// object per line. Feed the result to presence-report -source=replay or to
// cmd/tools/replay-server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/banshee-data/presence.report/internal/security"
	"github.com/banshee-data/presence.report/internal/units"
)

// logFrame and logDetection mirror the detector wire format.
type logFrame struct {
	Frame      int64          `json:"frame"`
	TS         float64        `json:"ts"`
	Detections []logDetection `json:"detections"`
}

type logDetection struct {
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
}

// walker is one synthetic person: a fixed-size box whose centroid crosses
// the frame horizontally at constant speed plus per-frame jitter. After
// leaving the frame it waits out a gap and re-enters from a random side.
type walker struct {
	x, y     float64
	vx       float64
	w, h     float64
	conf     float64
	entersAt int
}

// scene generates detections for a set of walkers over a frame sequence.
// All randomness comes from the seeded source, so the same seed always
// produces the same log.
type scene struct {
	rng     *rand.Rand
	frame   units.FrameSize
	walkers []*walker
}

func newScene(seed int64, people int, frame units.FrameSize) *scene {
	s := &scene{
		rng:   rand.New(rand.NewSource(seed)),
		frame: frame,
	}
	for i := 0; i < people; i++ {
		w := &walker{}
		// Stagger entries so the log opens on an empty scene and the
		// count ramps up instead of arriving all at once.
		s.rearm(w, 3+s.rng.Intn(40)+i*15)
		s.walkers = append(s.walkers, w)
	}
	return s
}

// rearm schedules a walker to enter the scene at the given frame with a
// fresh size, lane, speed and side.
func (s *scene) rearm(w *walker, entersAt int) {
	w.entersAt = entersAt
	w.w = 70 + s.rng.Float64()*60
	w.h = 180 + s.rng.Float64()*100
	w.y = float64(s.frame.Height)*0.35 + s.rng.Float64()*float64(s.frame.Height)*0.4
	w.conf = math.Round((0.75+s.rng.Float64()*0.24)*100) / 100

	speed := 2 + s.rng.Float64()*5
	if s.rng.Intn(2) == 0 {
		w.x = -w.w / 2
		w.vx = speed
	} else {
		w.x = float64(s.frame.Width) + w.w/2
		w.vx = -speed
	}
}

// step advances every walker one frame and returns the visible detections.
func (s *scene) step(frame int) []logDetection {
	var dets []logDetection
	for _, w := range s.walkers {
		if frame < w.entersAt {
			continue
		}
		w.x += w.vx + (s.rng.Float64()-0.5)*2
		w.y += (s.rng.Float64() - 0.5) * 1.5

		box := units.Rect{
			X1: w.x - w.w/2, Y1: w.y - w.h/2,
			X2: w.x + w.w/2, Y2: w.y + w.h/2,
		}.Clamp(s.frame)

		// Skip slivers at the frame edge; once the walker is fully out,
		// schedule a re-entry after a gap.
		if box.Width() < 8 || box.Height() < 8 {
			if w.x+w.w/2 <= 0 || w.x-w.w/2 >= float64(s.frame.Width) {
				s.rearm(w, frame+10+s.rng.Intn(60))
			}
			continue
		}

		dets = append(dets, logDetection{
			Box:        [4]float64{round1(box.X1), round1(box.Y1), round1(box.X2), round1(box.Y2)},
			Confidence: w.conf,
		})
	}
	return dets
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// writeLog emits the full log, one JSON frame per line. Timestamps start
// at startTS and advance by 1/fps per frame. Returns the total number of
// detections written.
func writeLog(out io.Writer, s *scene, frames int, fps, startTS float64) (int, error) {
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	total := 0
	for i := 0; i < frames; i++ {
		f := logFrame{
			Frame:      int64(i),
			TS:         startTS + float64(i)/fps,
			Detections: s.step(i),
		}
		if f.Detections == nil {
			f.Detections = []logDetection{}
		}
		total += len(f.Detections)
		if err := enc.Encode(f); err != nil {
			return total, err
		}
	}
	return total, w.Flush()
}

func main() {
	output := flag.String("o", "sample.jsonl", "output path")
	frames := flag.Int("n", 600, "number of frames")
	people := flag.Int("people", 3, "number of synthetic walkers")
	fps := flag.Float64("fps", 5, "frame rate used for timestamps")
	seed := flag.Int64("seed", 1, "random seed (same seed, same log)")
	width := flag.Float64("width", 960, "frame width in pixels")
	height := flag.Float64("height", 540, "frame height in pixels")
	flag.Parse()

	if *frames <= 0 {
		log.Fatal("Error: -n must be positive")
	}
	if *fps <= 0 {
		log.Fatal("Error: -fps must be positive")
	}
	if err := security.ValidateExportPath(*output); err != nil {
		log.Fatalf("Invalid output path: %v", err)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}

	s := newScene(*seed, *people, units.FrameSize{Width: int(*width), Height: int(*height)})
	start := float64(time.Now().UnixNano()) / 1e9
	dets, err := writeLog(f, s, *frames, *fps, start)
	if err != nil {
		f.Close()
		log.Fatalf("Failed to write log: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close output file: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames, %d detections)", *output, *frames, dets)
}
