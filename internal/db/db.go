package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database without creating any schema. Used by the
// migrate CLI, which manages the schema itself.
func OpenDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{sqldb}, nil
}

// NewDB opens the database and ensures the baseline schema exists.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			source            TEXT NOT NULL,
			started_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS count_events (
			event_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT NOT NULL,
			count             INTEGER NOT NULL,
			timestamp         TIMESTAMP NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_count_events_timestamp ON count_events(timestamp);
	`)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Session is one run of the counting pipeline against a single source.
type Session struct {
	ID        string    `json:"session_id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
}

// CreateSession registers a new pipeline run and returns it.
func (db *DB) CreateSession(source string) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		"INSERT INTO sessions (session_id, source, started_at) VALUES (?, ?, ?)",
		s.ID, s.Source, s.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Sessions returns the most recent pipeline runs, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := db.Query(
		"SELECT session_id, source, started_at FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Source, &s.StartedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// CountEvent is one occupancy change as stored.
type CountEvent struct {
	EventID   int64     `json:"event_id"`
	SessionID string    `json:"session_id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordCountEvent stores one occupancy change.
func (db *DB) RecordCountEvent(sessionID string, count int, timestamp time.Time) error {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	_, err := db.Exec(
		"INSERT INTO count_events (session_id, count, timestamp) VALUES (?, ?, ?)",
		sessionID, count, timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record count event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent occupancy changes, newest first.
func (db *DB) RecentEvents(limit int) ([]CountEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := db.Query(
		`SELECT event_id, session_id, count, timestamp FROM count_events
		 ORDER BY timestamp DESC, event_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CountEvent
	for rows.Next() {
		var e CountEvent
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Count, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// EventsBetween returns the occupancy changes with start <= timestamp < end,
// oldest first. A zero end means "now".
func (db *DB) EventsBetween(start, end time.Time) ([]CountEvent, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range: start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	rows, err := db.Query(
		`SELECT event_id, session_id, count, timestamp FROM count_events
		 WHERE timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC, event_id ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CountEvent
	for rows.Next() {
		var e CountEvent
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Count, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// LatestCount returns the most recent occupancy change, or nil when no
// events have been recorded yet.
func (db *DB) LatestCount() (*CountEvent, error) {
	var e CountEvent
	err := db.QueryRow(
		`SELECT event_id, session_id, count, timestamp FROM count_events
		 ORDER BY timestamp DESC, event_id DESC LIMIT 1`,
	).Scan(&e.EventID, &e.SessionID, &e.Count, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// OccupancyRollupRow summarizes one day of occupancy changes.
type OccupancyRollupRow struct {
	Date      string  `json:"date"`
	Events    int64   `json:"events"`
	PeakCount int64   `json:"peak_count"`
	MeanCount float64 `json:"mean_count"`
}

// OccupancyRollup aggregates the last N days of occupancy changes into
// daily rows, oldest first.
func (db *DB) OccupancyRollup(days int) ([]OccupancyRollupRow, error) {
	if days <= 0 {
		days = 7
	}
	if days > 365 {
		days = 365
	}

	rows, err := db.Query(
		`SELECT date(timestamp) AS day,
		        COUNT(*) AS events,
		        MAX(count) AS peak_count,
		        AVG(count) AS mean_count
		 FROM count_events
		 WHERE timestamp >= datetime('now', ?)
		 GROUP BY day
		 ORDER BY day ASC`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollup []OccupancyRollupRow
	for rows.Next() {
		var r OccupancyRollupRow
		if err := rows.Scan(&r.Date, &r.Events, &r.PeakCount, &r.MeanCount); err != nil {
			return nil, err
		}
		rollup = append(rollup, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rollup, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://presence.db", db.DB, &tailsql.DBOptions{
		Label: "Presence DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
