package main

import (
	"strings"
	"testing"
	"time"
)

func TestBackup_Structure(t *testing.T) {
	b := &Backup{
		Target:    "localhost",
		SSHUser:   "testuser",
		SSHKey:    "/test/key",
		OutputDir: "/tmp/backups",
	}

	if b.Target != "localhost" {
		t.Errorf("Target = %s, want localhost", b.Target)
	}
	if b.SSHUser != "testuser" {
		t.Errorf("SSHUser = %s, want testuser", b.SSHUser)
	}
	if b.OutputDir != "/tmp/backups" {
		t.Errorf("OutputDir = %s, want /tmp/backups", b.OutputDir)
	}
}

func TestBackup_DirectoryNaming(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 15, 0, 0, time.UTC)

	got := backupDirName("lobby-pi", now)
	want := "presence-report-backup-lobby-pi-20260302-141500"
	if got != want {
		t.Errorf("backupDirName = %q, want %q", got, want)
	}

	// user@ prefixes are flattened so the name stays shell-friendly
	got = backupDirName("pi@lobby-cam.local", now)
	want = "presence-report-backup-pi_lobby-cam.local-20260302-141500"
	if got != want {
		t.Errorf("backupDirName = %q, want %q", got, want)
	}
}

func TestBackup_FormatMetadata(t *testing.T) {
	content := formatBackupMetadata("lobby-pi", "20260302-141500", "presence-report 0.2.0", "active")

	for _, want := range []string{
		"Presence.report Backup",
		"Timestamp: 20260302-141500",
		"Target: lobby-pi",
		"Binary Version: presence-report 0.2.0",
		"Service Status: active",
		"To restore this backup:",
		"sudo systemctl stop presence-report.service",
		"sudo cp presence-report /usr/local/bin/presence-report",
		"sudo systemctl daemon-reload",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("metadata missing %q", want)
		}
	}
}

func TestBackup_Execute_NoService(t *testing.T) {
	t.Skip("Skipping test that requires sudo and service installation")

	b := &Backup{
		Target:    "localhost",
		OutputDir: t.TempDir(),
	}

	// Without an installed service the binary copy fails; we are checking
	// that it fails gracefully with a descriptive error.
	err := b.Execute()
	if err == nil {
		t.Log("Note: Backup succeeded (unexpected in test environment)")
	} else if err.Error() == "" {
		t.Error("Expected non-empty error message")
	}
}

func TestBackup_RemoteTarget(t *testing.T) {
	b := &Backup{
		Target:        "192.168.1.100",
		SSHUser:       "pi",
		SSHKey:        "/home/user/.ssh/id_rsa",
		IdentityAgent: "/run/ssh-agent.sock",
		OutputDir:     "/var/backups",
	}

	if b.Target != "192.168.1.100" {
		t.Errorf("Target = %s, want 192.168.1.100", b.Target)
	}
	if b.SSHUser != "pi" {
		t.Errorf("SSHUser = %s, want pi", b.SSHUser)
	}
	if !strings.HasSuffix(b.SSHKey, "id_rsa") {
		t.Errorf("SSHKey should end with id_rsa, got %s", b.SSHKey)
	}
	if b.IdentityAgent == "" {
		t.Error("Expected IdentityAgent to be set")
	}
}
