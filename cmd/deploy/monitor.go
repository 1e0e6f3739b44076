package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/presence.report/internal/deploy"
)

// Monitor handles status checking and health monitoring
type Monitor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	APIPort       int
}

// HealthStatus represents the health check result
type HealthStatus struct {
	Healthy bool
	Message string
	Details string
}

// SystemStatus aggregates everything the status subcommand reports:
// systemd state, the daemon's own counters, and host resource usage.
type SystemStatus struct {
	Target          string
	ServiceState    string
	StartedAt       string
	BinaryVersion   string
	SessionID       string
	CurrentCount    int
	FramesProcessed int64
	DatabaseSize    string
	DiskUsage       string
	MemoryUsage     string
	LoadAverage     string
	RecentLogs      string
}

// apiStats mirrors the fields of /api/stats the deploy tool cares about.
type apiStats struct {
	SessionID       string `json:"session_id"`
	CurrentCount    int    `json:"current_count"`
	FrameIndex      int64  `json:"frame_index"`
	FramesProcessed int64  `json:"frames_processed"`
}

// apiBaseURL builds the daemon's API base URL from the monitor target.
func (m *Monitor) apiBaseURL() string {
	host := m.Target
	if host == "" {
		host = "localhost"
	}
	// Extract hostname from user@host format
	if parts := strings.Split(host, "@"); len(parts) > 1 {
		host = parts[1]
	}

	port := m.APIPort
	if port == 0 {
		port = 8080
	}

	return fmt.Sprintf("http://%s:%d", host, port)
}

// GetStatus gathers a full system status snapshot. Each step checks the
// context so a --timeout expiry aborts mid-collection instead of hanging
// on a dead SSH connection.
func (m *Monitor) GetStatus(ctx context.Context) (*SystemStatus, error) {
	exec := deploy.NewExecutor(m.Target, m.SSHUser, m.SSHKey, m.IdentityAgent, false)

	status := &SystemStatus{Target: m.Target}
	if status.Target == "" {
		status.Target = "localhost"
	}

	// Service state
	output, err := exec.RunSudo("systemctl is-active presence-report.service")
	if err != nil {
		status.ServiceState = "inactive"
	} else {
		status.ServiceState = strings.TrimSpace(output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Start timestamp
	output, err = exec.RunSudo("systemctl show presence-report.service --property=ActiveEnterTimestamp --value")
	if err == nil {
		status.StartedAt = strings.TrimSpace(output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Binary version
	output, err = exec.Run(fmt.Sprintf("%s -version 2>&1 || true", installPath))
	if err == nil {
		status.BinaryVersion = strings.TrimSpace(output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Live counters from the daemon itself
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBaseURL()+"/api/stats", nil)
	if err == nil {
		resp, err := client.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				var stats apiStats
				if err := json.NewDecoder(resp.Body).Decode(&stats); err == nil {
					status.SessionID = stats.SessionID
					status.CurrentCount = stats.CurrentCount
					status.FramesProcessed = stats.FramesProcessed
				}
			}
			resp.Body.Close()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Database size
	dbPath := filepath.Join(dataDir, dbFileName)
	output, err = exec.RunSudo(fmt.Sprintf("du -h %s 2>/dev/null | cut -f1", dbPath))
	if err == nil && strings.TrimSpace(output) != "" {
		status.DatabaseSize = strings.TrimSpace(output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Disk usage on the data volume
	output, err = exec.Run(fmt.Sprintf("df -h %s 2>/dev/null | tail -1 | awk '{print $3 \" used / \" $4 \" free (\" $5 \")\"}'", dataDir))
	if err == nil {
		status.DiskUsage = strings.TrimSpace(output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Memory and load
	output, err = exec.Run("free -h 2>/dev/null | awk 'NR==2{print $3 \" used / \" $2 \" total\"}'")
	if err == nil {
		status.MemoryUsage = strings.TrimSpace(output)
	}
	output, err = exec.Run("cat /proc/loadavg 2>/dev/null | cut -d' ' -f1-3")
	if err == nil {
		status.LoadAverage = strings.TrimSpace(output)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Recent log lines
	output, err = exec.RunSudo("journalctl -u presence-report.service -n 5 --no-pager --output=cat")
	if err == nil {
		status.RecentLogs = strings.TrimRight(output, "\n")
	}

	return status, nil
}

// FormatStatus renders the status snapshot for terminal output.
func (s *SystemStatus) FormatStatus() string {
	var b strings.Builder

	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	b.WriteString(fmt.Sprintf("📡 presence.report — %s\n", s.Target))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	stateMark := "✗"
	if s.ServiceState == "active" {
		stateMark = "✓"
	}
	b.WriteString(fmt.Sprintf("%s Service:    %s", stateMark, s.ServiceState))
	if s.StartedAt != "" {
		b.WriteString(fmt.Sprintf(" (since %s)", s.StartedAt))
	}
	b.WriteString("\n")

	if s.BinaryVersion != "" {
		b.WriteString(fmt.Sprintf("  Version:    %s\n", s.BinaryVersion))
	}

	if s.SessionID != "" {
		b.WriteString(fmt.Sprintf("  Occupancy:  %d (session %s)\n", s.CurrentCount, s.SessionID))
		b.WriteString(fmt.Sprintf("  Frames:     %d processed\n", s.FramesProcessed))
	} else {
		b.WriteString("  Occupancy:  unavailable (API not responding)\n")
	}

	if s.DatabaseSize != "" {
		b.WriteString(fmt.Sprintf("  Database:   %s\n", s.DatabaseSize))
	}
	if s.DiskUsage != "" {
		b.WriteString(fmt.Sprintf("  Disk:       %s\n", s.DiskUsage))
	}
	if s.MemoryUsage != "" {
		b.WriteString(fmt.Sprintf("  Memory:     %s\n", s.MemoryUsage))
	}
	if s.LoadAverage != "" {
		b.WriteString(fmt.Sprintf("  Load:       %s\n", s.LoadAverage))
	}

	if s.RecentLogs != "" {
		b.WriteString("\nRecent logs:\n")
		for _, line := range strings.Split(s.RecentLogs, "\n") {
			b.WriteString("  " + line + "\n")
		}
	}

	return b.String()
}

// CheckHealth performs comprehensive health check
func (m *Monitor) CheckHealth() (*HealthStatus, error) {
	exec := deploy.NewExecutor(m.Target, m.SSHUser, m.SSHKey, m.IdentityAgent, false)

	health := &HealthStatus{
		Healthy: true,
		Details: "",
	}

	var checks []string

	// Check 1: Service is running
	output, err := exec.RunSudo("systemctl is-active presence-report.service")
	if err != nil || strings.TrimSpace(output) != "active" {
		health.Healthy = false
		health.Message = "Service is not running"
		checks = append(checks, "✗ Service: NOT RUNNING")
	} else {
		checks = append(checks, "✓ Service: RUNNING")
	}

	// Check 2: Service has been up for some time (not crash-looping)
	uptimeOutput, err := exec.RunSudo("systemctl show presence-report.service --property=ActiveEnterTimestamp --value")
	if err == nil {
		checks = append(checks, fmt.Sprintf("✓ Started: %s", strings.TrimSpace(uptimeOutput)))
	}

	// Check 3: Check for recent errors in logs
	logsOutput, err := exec.RunSudo("journalctl -u presence-report.service -n 20 --no-pager")
	if err == nil {
		errorCount := strings.Count(strings.ToLower(logsOutput), "error")
		if errorCount > 5 {
			health.Healthy = false
			health.Message = fmt.Sprintf("Too many errors in logs (%d)", errorCount)
			checks = append(checks, fmt.Sprintf("✗ Logs: %d errors found", errorCount))
		} else {
			checks = append(checks, fmt.Sprintf("✓ Logs: %d errors (acceptable)", errorCount))
		}
	}

	client := &http.Client{Timeout: 5 * time.Second}

	// Check 4: Liveness endpoint is responding
	resp, err := client.Get(m.apiBaseURL() + "/healthz")
	if err != nil {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "API endpoint not responding"
		}
		checks = append(checks, "✗ API: NOT RESPONDING")
	} else {
		var probe struct {
			Status string `json:"status"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&probe)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK && decodeErr == nil && probe.Status == "ok" {
			checks = append(checks, "✓ API: RESPONDING")
		} else {
			health.Healthy = false
			if health.Message == "" {
				health.Message = fmt.Sprintf("API returned status %d", resp.StatusCode)
			}
			checks = append(checks, fmt.Sprintf("✗ API: Status %d", resp.StatusCode))
		}
	}

	// Check 5: Pipeline is reporting counts
	resp, err = client.Get(m.apiBaseURL() + "/api/stats")
	if err == nil {
		var stats apiStats
		decodeErr := json.NewDecoder(resp.Body).Decode(&stats)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK && decodeErr == nil {
			checks = append(checks, fmt.Sprintf("  Occupancy: %d", stats.CurrentCount))
			checks = append(checks, fmt.Sprintf("  Session: %s", stats.SessionID))
			checks = append(checks, fmt.Sprintf("  Frames: %d", stats.FramesProcessed))
		}
	}

	// Check 6: Database file exists
	dbPath := filepath.Join(dataDir, dbFileName)
	dbCheck, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if err == nil && strings.TrimSpace(dbCheck) == "exists" {
		// Get database size
		sizeOutput, err := exec.RunSudo(fmt.Sprintf("du -h %s | cut -f1", dbPath))
		if err == nil {
			checks = append(checks, fmt.Sprintf("✓ Database: %s", strings.TrimSpace(sizeOutput)))
		} else {
			checks = append(checks, "✓ Database: EXISTS")
		}
	} else {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "Database file not found"
		}
		checks = append(checks, "✗ Database: MISSING")
	}

	health.Details = strings.Join(checks, "\n")

	if health.Healthy {
		health.Message = "All checks passed"
	}

	return health, nil
}

// ScanDiskUsage reports what is eating space on the data volume,
// including the journal's own footprint.
func (m *Monitor) ScanDiskUsage(ctx context.Context) (string, error) {
	exec := deploy.NewExecutor(m.Target, m.SSHUser, m.SSHKey, m.IdentityAgent, false)

	var b strings.Builder

	output, err := exec.RunSudo(fmt.Sprintf("du -xh --max-depth=1 %s 2>/dev/null | sort -rh", dataDir))
	if err == nil {
		b.WriteString("\nData directory usage:\n")
		b.WriteString(output)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	output, err = exec.RunSudo(fmt.Sprintf("find %s -type f -exec du -h {} + 2>/dev/null | sort -rh | head -10", dataDir))
	if err == nil {
		b.WriteString("\nLargest files:\n")
		b.WriteString(output)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	output, err = exec.RunSudo("journalctl -u presence-report.service --disk-usage 2>/dev/null")
	if err == nil {
		b.WriteString("\nJournal usage:\n")
		b.WriteString(output)
	}

	return b.String(), nil
}
