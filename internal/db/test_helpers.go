package db

import (
	"path/filepath"
	"testing"
	"time"
)

// newTestDB opens a fresh database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := NewDB(filepath.Join(t.TempDir(), "presence-test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// createTestSessionWithEvents creates a session and a run of count
// events spaced one second apart ending now.
func createTestSessionWithEvents(t *testing.T, database *DB, counts ...int) *Session {
	t.Helper()

	session, err := database.CreateSession("replay")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	base := time.Now().UTC().Add(-time.Duration(len(counts)) * time.Second)
	for i, count := range counts {
		ts := base.Add(time.Duration(i) * time.Second)
		if err := database.RecordCountEvent(session.ID, count, ts); err != nil {
			t.Fatalf("RecordCountEvent failed: %v", err)
		}
	}

	return session
}
