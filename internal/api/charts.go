package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/presence.report/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// occupancyChart renders a line chart of daily occupancy (peak and mean) over
// the query window as a standalone HTML page.
// Query params:
//   - days (optional; default 7, max 365)
func (s *Server) occupancyChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 || parsed > 365 {
			httputil.BadRequest(w, "Invalid 'days' parameter")
			return
		}
		days = parsed
	}

	rollup, err := s.db.OccupancyRollup(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve occupancy rollup: %v", err))
		return
	}

	dates := make([]string, 0, len(rollup))
	peak := make([]opts.LineData, 0, len(rollup))
	mean := make([]opts.LineData, 0, len(rollup))
	var totalEvents int64
	for _, row := range rollup {
		dates = append(dates, row.Date)
		peak = append(peak, opts.LineData{Value: row.PeakCount})
		mean = append(mean, opts.LineData{Value: row.MeanCount})
		totalEvents += row.Events
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Daily Occupancy", Subtitle: fmt.Sprintf("last %d days, %d count events", days, totalEvents)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "People", NameLocation: "middle", NameGap: 30}),
	)

	line.SetXAxis(dates).
		AddSeries("peak", peak).
		AddSeries("mean", mean)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
