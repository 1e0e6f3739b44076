// Command occupancy-report summarizes recorded occupancy over a date range.
//
// It reads count events straight from a presence database (or, with -url,
// from a running daemon's history API) and prints a text summary. -html
// writes an interactive report (occupancy timeline, hourly peaks and a
// summary table), -png a static occupancy plot, -json the raw report for
// further processing.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/httputil"
	"github.com/banshee-data/presence.report/internal/security"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Config holds the report parameters.
type Config struct {
	DBPath   string
	URL      string
	Start    string
	End      string
	HTMLPath string
	PNGPath  string
	JSONPath string
}

// Report holds everything derived from the selected events.
type Report struct {
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	Stats  OccupancyStats  `json:"stats"`
	Hours  []HourBucket    `json:"hours,omitempty"`
	Events []db.CountEvent `json:"events,omitempty"`
}

// OccupancyStats summarizes the recorded counts. Statistics are over the
// recorded change events, not time-weighted occupancy.
type OccupancyStats struct {
	Events      int     `json:"events"`
	Mean        float64 `json:"mean"`
	Max         int     `json:"max"`
	P50         float64 `json:"p50"`
	P85         float64 `json:"p85"`
	P98         float64 `json:"p98"`
	BusiestHour string  `json:"busiest_hour,omitempty"`
	BusiestPeak int     `json:"busiest_peak,omitempty"`
}

// HourBucket is one hour of the range with at least one recorded event.
type HourBucket struct {
	Hour   time.Time `json:"hour"`
	Events int       `json:"events"`
	Peak   int       `json:"peak"`
	Mean   float64   `json:"mean"`
}

func main() {
	cfg := parseFlags()

	for _, p := range []string{cfg.HTMLPath, cfg.PNGPath, cfg.JSONPath} {
		if p == "" {
			continue
		}
		if err := security.ValidateExportPath(p); err != nil {
			log.Fatalf("Invalid output path %q: %v", p, err)
		}
	}

	start, end, err := resolveRange(cfg.Start, cfg.End, time.Now().UTC())
	if err != nil {
		log.Fatalf("Invalid date range: %v", err)
	}

	var report *Report
	if cfg.URL != "" {
		events, err := fetchEvents(httputil.NewStandardClient(nil), cfg.URL, start, end)
		if err != nil {
			log.Fatalf("Failed to fetch events from %s: %v", cfg.URL, err)
		}
		report = computeReport(events, start, end)
	} else {
		if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
			log.Fatalf("Database not found: %s", cfg.DBPath)
		}
		database, err := db.OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		report, err = buildReport(database, start, end)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
	}

	printReport(report)

	if cfg.HTMLPath != "" {
		if err := writeHTML(report, cfg.HTMLPath); err != nil {
			log.Fatalf("Failed to write HTML report: %v", err)
		}
		log.Printf("✓ HTML report: %s", cfg.HTMLPath)
	}
	if cfg.PNGPath != "" {
		if err := writePNG(report, cfg.PNGPath); err != nil {
			log.Fatalf("Failed to write PNG plot: %v", err)
		}
		log.Printf("✓ PNG plot: %s", cfg.PNGPath)
	}
	if cfg.JSONPath != "" {
		if err := exportJSON(report, cfg.JSONPath); err != nil {
			log.Fatalf("Failed to export JSON: %v", err)
		}
		log.Printf("Results exported to: %s", cfg.JSONPath)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.DBPath, "db", "presence_data.db", "Path to presence database")
	flag.StringVar(&cfg.URL, "url", "", "Fetch events from a running daemon instead of -db (e.g. http://lobby-pi:8080)")
	flag.StringVar(&cfg.Start, "start", "", "First day to include, YYYY-MM-DD (default: end minus 7 days)")
	flag.StringVar(&cfg.End, "end", "", "Last day to include, YYYY-MM-DD (default: today)")
	flag.StringVar(&cfg.HTMLPath, "html", "", "Write an HTML report to this file")
	flag.StringVar(&cfg.PNGPath, "png", "", "Write a PNG occupancy plot to this file")
	flag.StringVar(&cfg.JSONPath, "json", "", "Write the report as JSON to this file")

	flag.Parse()

	return cfg
}

// resolveRange turns the -start/-end day flags into a half-open UTC range.
// Both days are inclusive, so the returned end is the midnight after the
// last day.
func resolveRange(startDay, endDay string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if endDay != "" {
		d, err := time.ParseInLocation("2006-01-02", endDay, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -end: %w", err)
		}
		end = d.Add(24 * time.Hour)
	}

	start := end.Add(-7 * 24 * time.Hour)
	if startDay != "" {
		d, err := time.ParseInLocation("2006-01-02", startDay, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -start: %w", err)
		}
		start = d
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

// buildReport loads the events in [start, end) from the database and
// computes the summary statistics and the hourly rollup.
func buildReport(database *db.DB, start, end time.Time) (*Report, error) {
	events, err := database.EventsBetween(start, end)
	if err != nil {
		return nil, err
	}
	return computeReport(events, start, end), nil
}

// fetchEvents pulls recent events from a daemon's history API and keeps
// those in [start, end), oldest first. The API serves at most its most
// recent 1000 events; use -db against the database file for older ranges.
func fetchEvents(client httputil.HTTPClient, base string, start, end time.Time) ([]db.CountEvent, error) {
	resp, err := client.Get(strings.TrimRight(base, "/") + "/api/history?limit=1000")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var all []db.CountEvent
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	// The API serves newest first; reverse into chronological order.
	events := make([]db.CountEvent, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		ev := all[i]
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// computeReport derives the summary statistics and hourly rollup from
// chronologically ordered events.
func computeReport(events []db.CountEvent, start, end time.Time) *Report {
	report := &Report{Start: start, End: end, Events: events}
	if len(events) == 0 {
		return report
	}

	counts := make([]float64, len(events))
	maxCount := 0
	byHour := make(map[time.Time]*HourBucket)
	for i, ev := range events {
		counts[i] = float64(ev.Count)
		if ev.Count > maxCount {
			maxCount = ev.Count
		}

		hour := ev.Timestamp.UTC().Truncate(time.Hour)
		b := byHour[hour]
		if b == nil {
			b = &HourBucket{Hour: hour}
			byHour[hour] = b
		}
		b.Events++
		b.Mean += float64(ev.Count) // running sum, divided below
		if ev.Count > b.Peak {
			b.Peak = ev.Count
		}
	}

	sorted := make([]float64, len(counts))
	copy(sorted, counts)
	sort.Float64s(sorted)

	stats := OccupancyStats{
		Events: len(events),
		Mean:   stat.Mean(counts, nil),
		Max:    maxCount,
		P50:    stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P85:    stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P98:    stat.Quantile(0.98, stat.Empirical, sorted, nil),
	}

	for _, b := range byHour {
		b.Mean /= float64(b.Events)
		report.Hours = append(report.Hours, *b)
	}
	sort.Slice(report.Hours, func(i, j int) bool {
		return report.Hours[i].Hour.Before(report.Hours[j].Hour)
	})

	// Busiest hour by peak count; earliest hour wins a tie.
	for _, b := range report.Hours {
		if b.Peak > stats.BusiestPeak {
			stats.BusiestPeak = b.Peak
			stats.BusiestHour = b.Hour.Format("2006-01-02 15:00")
		}
	}

	report.Stats = stats
	return report
}

func printReport(r *Report) {
	fmt.Println("\n=== Occupancy Report ===")
	fmt.Printf("Range: %s to %s\n",
		r.Start.Format("2006-01-02"), r.End.Add(-24*time.Hour).Format("2006-01-02"))
	fmt.Printf("Events: %d\n", r.Stats.Events)
	if r.Stats.Events == 0 {
		fmt.Println("No occupancy events recorded in this range.")
		return
	}
	fmt.Printf("Mean Count: %.2f\n", r.Stats.Mean)
	fmt.Printf("Max Count: %d\n", r.Stats.Max)
	fmt.Printf("Percentiles: p50=%.0f p85=%.0f p98=%.0f\n", r.Stats.P50, r.Stats.P85, r.Stats.P98)
	fmt.Printf("Busiest Hour: %s (peak %d)\n", r.Stats.BusiestHour, r.Stats.BusiestPeak)

	fmt.Println("\n--- Hourly Peaks ---")
	for _, b := range r.Hours {
		fmt.Printf("%s  events=%-4d peak=%-3d mean=%.2f\n",
			b.Hour.Format("2006-01-02 15:00"), b.Events, b.Peak, b.Mean)
	}
}

// writeHTML renders the interactive report: occupancy timeline, hourly
// peaks, and the summary table appended under the charts.
func writeHTML(r *Report, path string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy Report", Theme: "dark", Width: "1400px", Height: "500px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Timeline", Subtitle: fmt.Sprintf("%s to %s, %d events",
			r.Start.Format("2006-01-02"), r.End.Add(-24*time.Hour).Format("2006-01-02"), r.Stats.Events)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "People", NameLocation: "middle", NameGap: 30}),
	)

	times := make([]string, 0, len(r.Events))
	counts := make([]opts.LineData, 0, len(r.Events))
	for _, ev := range r.Events {
		times = append(times, ev.Timestamp.UTC().Format("01-02 15:04:05"))
		counts = append(counts, opts.LineData{Value: ev.Count})
	}
	line.SetXAxis(times).AddSeries("occupancy", counts)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1400px", Height: "400px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Hourly Peaks"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	hours := make([]string, 0, len(r.Hours))
	peaks := make([]opts.BarData, 0, len(r.Hours))
	for _, b := range r.Hours {
		hours = append(hours, b.Hour.Format("01-02 15:00"))
		peaks = append(peaks, opts.BarData{Value: b.Peak})
	}
	bar.SetXAxis(hours).AddSeries("peak", peaks)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	doc := strings.Replace(buf.String(), "</body>", summaryTable(r)+"\n</body>", 1)
	return os.WriteFile(path, []byte(doc), 0o644)
}

// summaryTable renders the stats block appended under the charts.
func summaryTable(r *Report) string {
	var b strings.Builder
	b.WriteString(`<div style="margin:24px"><table border="1" cellpadding="6" style="border-collapse:collapse">`)
	b.WriteString("<tr><th>Events</th><th>Mean</th><th>Max</th><th>p50</th><th>p85</th><th>p98</th><th>Busiest hour</th></tr>")
	fmt.Fprintf(&b, "<tr><td>%d</td><td>%.2f</td><td>%d</td><td>%.0f</td><td>%.0f</td><td>%.0f</td><td>%s (peak %d)</td></tr>",
		r.Stats.Events, r.Stats.Mean, r.Stats.Max, r.Stats.P50, r.Stats.P85, r.Stats.P98,
		r.Stats.BusiestHour, r.Stats.BusiestPeak)
	b.WriteString("</table></div>")
	return b.String()
}

// writePNG renders the occupancy step function over the range as a static
// plot.
func writePNG(r *Report, path string) error {
	if len(r.Events) == 0 {
		return errors.New("no events in range")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Occupancy %s to %s",
		r.Start.Format("2006-01-02"), r.End.Add(-24*time.Hour).Format("2006-01-02"))
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "People"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}

	pts := make(plotter.XYs, 0, len(r.Events))
	for _, ev := range r.Events {
		pts = append(pts, plotter.XY{X: float64(ev.Timestamp.Unix()), Y: float64(ev.Count)})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	line.Width = vg.Points(1)
	line.StepStyle = plotter.PostStep
	p.Add(line)
	p.Legend.Add("occupancy", line)
	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save occupancy plot: %w", err)
	}
	return nil
}

func exportJSON(r *Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
