// Package api serves the HTTP surface of the presence daemon: JSON endpoints
// for stats, history, and the live overlay, a validated camera command
// pass-through, a WebSocket feed, server-rendered charts, and the embedded
// dashboard.
package api

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/presence.report/internal/camera"
	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/httputil"
	"github.com/banshee-data/presence.report/internal/serialmux"
	"github.com/banshee-data/presence.report/internal/version"
	"github.com/banshee-data/presence.report/internal/vision"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

//go:embed static/*
var staticFiles embed.FS

type Server struct {
	m       serialmux.SerialMuxInterface
	db      *db.DB
	worker  *vision.Worker
	tuning  *config.TuningConfig
	hub     *Hub
	dev     bool
	started time.Time
}

func NewServer(m serialmux.SerialMuxInterface, database *db.DB, worker *vision.Worker, tuning *config.TuningConfig, hub *Hub, dev bool) *Server {
	return &Server{
		m:       m,
		db:      database,
		worker:  worker,
		tuning:  tuning,
		hub:     hub,
		dev:     dev,
		started: time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the WebSocket upgrade work through the logging wrapper.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/history", s.listHistory)
	mux.HandleFunc("/api/tracks", s.showTracks)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/charts/occupancy", s.occupancyChart)
	mux.HandleFunc("/healthz", s.healthz)
	mux.Handle("/", s.staticHandler())
	return mux
}

// staticHandler serves the dashboard from the embedded filesystem, or from
// ./internal/api/static on disk in dev mode for iteration without a rebuild.
func (s *Server) staticHandler() http.Handler {
	if s.dev {
		return http.FileServer(http.Dir("./internal/api/static"))
	}
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // embedded tree is fixed at build time
	}
	return http.FileServer(http.FS(sub))
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")

	if !camera.IsAllowedCommand(command) {
		http.Error(w, "Command not allowed", http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	cfg := map[string]interface{}{
		"version":            version.Version,
		"git_sha":            version.GitSHA,
		"max_match_distance": s.tuning.GetMaxMatchDistance(),
		"max_disappeared":    s.tuning.GetMaxDisappeared(),
		"skip_frames":        s.tuning.GetSkipFrames(),
		"stale_seen_frames":  s.tuning.GetStaleSeenFrames(),
		"queue_size":         s.tuning.GetQueueSize(),
		"frame_width":        s.tuning.GetFrameWidth(),
		"frame_height":       s.tuning.GetFrameHeight(),
		"min_confidence":     s.tuning.GetMinConfidence(),
		"normalized_boxes":   s.tuning.GetNormalizedBoxes(),
		"camera":             camera.State(),
	}

	httputil.WriteJSONOK(w, cfg)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.worker.Snapshot()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":         "ok",
		"session_id":     snap.SessionID,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"frames":         snap.FrameIndex,
	})
}
