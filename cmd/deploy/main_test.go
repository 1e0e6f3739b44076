package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/presence.report/internal/deploy"
)

func TestMain_VersionConstant(t *testing.T) {
	if version == "" {
		t.Error("version constant should not be empty")
	}

	// Version should follow semver format (loosely)
	if !strings.Contains(version, ".") {
		t.Error("version should contain at least one dot (semver format)")
	}
}

func TestMain_CommandValidation(t *testing.T) {
	validCommands := []string{
		"install",
		"upgrade",
		"status",
		"health",
		"rollback",
		"backup",
		"config",
		"version",
		"help",
	}

	for _, cmd := range validCommands {
		t.Run(cmd, func(t *testing.T) {
			if cmd == "" {
				t.Error("Command should not be empty")
			}
		})
	}
}

func TestMain_SSHConfigIntegration(t *testing.T) {
	// Test that SSH config is used when specified
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	sshDir := filepath.Join(tmpDir, ".ssh")
	if err := os.MkdirAll(sshDir, 0700); err != nil {
		t.Fatalf("Failed to create .ssh directory: %v", err)
	}

	configPath := filepath.Join(sshDir, "config")
	configContent := `Host lobby-pi
    HostName lobby-pi.example.com
    User presence
    IdentityFile ~/.ssh/lobby_key
`

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write SSH config: %v", err)
	}

	host, user, key, agent, err := deploy.ResolveSSHTarget("lobby-pi", "", "")
	if err != nil {
		t.Fatalf("ResolveSSHTarget() error: %v", err)
	}

	if host != "lobby-pi.example.com" {
		t.Errorf("host = %s, want lobby-pi.example.com", host)
	}
	if user != "presence" {
		t.Errorf("user = %s, want presence", user)
	}
	if !strings.HasSuffix(key, "lobby_key") {
		t.Errorf("key should end with lobby_key, got %s", key)
	}
	if agent != "" {
		t.Errorf("agent = %s, want empty (not configured)", agent)
	}
}

func TestMain_FlagDefaults(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantLocal bool
	}{
		{"empty target", "", true},
		{"localhost", "localhost", true},
		{"127.0.0.1", "127.0.0.1", true},
		{"remote", "192.168.1.100", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := deploy.NewExecutor(tt.target, "", "", "", false)
			if exec.IsLocal() != tt.wantLocal {
				t.Errorf("IsLocal() = %v, want %v", exec.IsLocal(), tt.wantLocal)
			}
		})
	}
}

func TestDebugLog_Disabled(t *testing.T) {
	DebugMode = false
	defer func() { DebugMode = false }()

	// Must not panic with formatting args when disabled
	debugLog("value: %d", 42)
}
