package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInstaller_validateBinary(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		binaryPath string
		createFile bool
		executable bool
		wantErr    bool
	}{
		{
			name:       "valid executable binary",
			binaryPath: filepath.Join(tmpDir, "valid-binary"),
			createFile: true,
			executable: true,
			wantErr:    false,
		},
		{
			name:       "non-executable file",
			binaryPath: filepath.Join(tmpDir, "non-exec"),
			createFile: true,
			executable: false,
			wantErr:    true,
		},
		{
			name:       "missing file",
			binaryPath: filepath.Join(tmpDir, "missing"),
			createFile: false,
			executable: false,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.createFile {
				content := []byte("#!/bin/sh\necho test\n")
				if err := os.WriteFile(tt.binaryPath, content, 0644); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}

				if tt.executable {
					if err := os.Chmod(tt.binaryPath, 0755); err != nil {
						t.Fatalf("Failed to make file executable: %v", err)
					}
				}
			}

			installer := &Installer{
				BinaryPath: tt.binaryPath,
				DryRun:     false,
			}

			err := installer.validateBinary()
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBinary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstaller_Install_DryRun(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a test binary
	binaryPath := filepath.Join(tmpDir, "test-binary")
	content := []byte("#!/bin/sh\necho test\n")
	if err := os.WriteFile(binaryPath, content, 0755); err != nil {
		t.Fatalf("Failed to create test binary: %v", err)
	}

	installer := &Installer{
		Target:     "localhost",
		BinaryPath: binaryPath,
		DryRun:     true,
	}

	// Dry-run walks every install step without touching the system, so
	// it must complete cleanly.
	if err := installer.Install(); err != nil {
		t.Errorf("Install() dry-run error = %v", err)
	}
}

func TestServiceContent(t *testing.T) {
	// Verify service file content has required fields
	requiredFields := []string{
		"[Unit]",
		"[Service]",
		"[Install]",
		"User=presence",
		"Group=presence",
		"EnvironmentFile=-/etc/default/presence-report",
		"ExecStart=/usr/local/bin/presence-report",
		"WorkingDirectory=/var/lib/presence-report",
		"SyslogIdentifier=presence-report",
		"Restart=on-failure",
	}

	for _, field := range requiredFields {
		if !strings.Contains(serviceContent, field) {
			t.Errorf("Service file missing required field: %s", field)
		}
	}
}

func TestEnvFileContent(t *testing.T) {
	// Every line ships commented out so a fresh install runs on defaults
	for _, line := range strings.Split(envFileContent, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			t.Errorf("Environment file ships with uncommented setting: %q", line)
		}
	}

	for _, key := range []string{"PRESENCE_SOURCE", "SERIAL_PORT", "UDP_PORT", "SKIP_FRAMES", "MQTT_BROKER", "MQTT_TOPIC_PREFIX"} {
		if !strings.Contains(envFileContent, key) {
			t.Errorf("Environment file missing example for %s", key)
		}
	}
}
