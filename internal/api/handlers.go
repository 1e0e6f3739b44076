package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/httputil"
	"github.com/banshee-data/presence.report/internal/vision"
)

type statsResponse struct {
	SessionID       string                  `json:"session_id"`
	CurrentCount    int                     `json:"current_count"`
	LastChange      time.Time               `json:"last_change"`
	FrameIndex      int64                   `json:"frame_index"`
	FramesProcessed int64                   `json:"frames_processed"`
	Pipeline        vision.StatsSnapshot    `json:"pipeline"`
	Occupancy       []db.OccupancyRollupRow `json:"occupancy"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	days := 1 // default value
	if d := r.URL.Query().Get("days"); d != "" {
		parsedDays, err := strconv.Atoi(d)
		if err != nil || parsedDays < 1 {
			httputil.BadRequest(w, "Invalid 'days' parameter")
			return
		}
		days = parsedDays
	}

	rollup, err := s.db.OccupancyRollup(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve occupancy rollup: %v", err))
		return
	}

	snap := s.worker.Snapshot()
	httputil.WriteJSONOK(w, statsResponse{
		SessionID:       snap.SessionID,
		CurrentCount:    snap.CurrentCount,
		LastChange:      snap.LastChange,
		FrameIndex:      snap.FrameIndex,
		FramesProcessed: snap.FramesProcessed,
		Pipeline:        snap.Stats,
		Occupancy:       rollup,
	})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 0 // store default applies
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	events, err := s.db.RecentEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}

	httputil.WriteJSONOK(w, events)
}

// showTracks returns the live overlay snapshot: tracked boxes with ids,
// recent departures, and pipeline counters. The dashboard draws this
// client-side over its own preview.
func (s *Server) showTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.worker.Snapshot())
}
