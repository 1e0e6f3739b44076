package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// udpPair returns a listening packet socket and a connected sender.
func udpPair(t *testing.T) (net.PacketConn, net.Conn) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	conn, err := net.Dial("udp", pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return pc, conn
}

func TestReplayLoopSendsAllFrames(t *testing.T) {
	pc, conn := udpPair(t)

	frames := [][]byte{
		[]byte(`{"frame":0,"ts":1.0,"detections":[]}`),
		[]byte(`{"frame":1,"ts":1.2,"detections":[{"box":[10,10,90,200],"confidence":0.9}]}`),
		[]byte(`{"frame":2,"ts":1.4,"detections":[]}`),
	}

	sent, err := replayLoop(context.Background(), conn, frames, 200, false)
	if err != nil {
		t.Fatalf("replayLoop failed: %v", err)
	}
	if sent != len(frames) {
		t.Errorf("sent %d frames, want %d", sent, len(frames))
	}

	buf := make([]byte, 2048)
	for i, want := range frames {
		if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("SetReadDeadline failed: %v", err)
		}
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read datagram %d: %v", i, err)
		}
		if string(buf[:n]) != string(want) {
			t.Errorf("datagram %d = %q, want %q", i, buf[:n], want)
		}
	}
}

func TestReplayLoopLoops(t *testing.T) {
	pc, conn := udpPair(t)

	frames := [][]byte{
		[]byte(`{"frame":0,"ts":1.0,"detections":[]}`),
		[]byte(`{"frame":1,"ts":1.1,"detections":[]}`),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var sent int
	var replayErr error
	go func() {
		defer close(done)
		sent, replayErr = replayLoop(ctx, conn, frames, 500, true)
	}()

	// With loop enabled the two-frame log must keep coming around.
	buf := make([]byte, 2048)
	for i := 0; i < 5; i++ {
		if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("SetReadDeadline failed: %v", err)
		}
		if _, _, err := pc.ReadFrom(buf); err != nil {
			t.Fatalf("read datagram %d: %v", i, err)
		}
	}

	cancel()
	<-done
	if replayErr != nil {
		t.Fatalf("replayLoop failed: %v", replayErr)
	}
	if sent < 5 {
		t.Errorf("sent %d frames before cancel, want at least 5", sent)
	}
}

func TestLoadLogSkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frames.jsonl")
	content := "# recorded at the lobby camera\n\n" +
		`{"frame":0,"ts":10.0,"detections":[]}` + "\n" +
		`{"frame":1,"ts":12.5,"detections":[]}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	frames, span, err := loadLog(path)
	if err != nil {
		t.Fatalf("loadLog failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("loadLog returned %d frames, want 2", len(frames))
	}
	if span != 2.5 {
		t.Errorf("span = %v, want 2.5", span)
	}
}

func TestLoadLogRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	content := `{"frame":0,"ts":1.0,"detections":[]}` + "\n{oops}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, _, err := loadLog(path); err == nil {
		t.Error("loadLog accepted a malformed line")
	}
}
