package deploy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testLogger struct {
	logs []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) {
	l.logs = append(l.logs, format)
}

func TestNewExecutor(t *testing.T) {
	e := NewExecutor("host.example.com", "user", "/path/to/key", "/path/to/agent", false)

	if e.Target != "host.example.com" {
		t.Errorf("Expected target host.example.com, got %s", e.Target)
	}
	if e.SSHUser != "user" {
		t.Errorf("Expected user, got %s", e.SSHUser)
	}
	if e.SSHKey != "/path/to/key" {
		t.Errorf("Expected /path/to/key, got %s", e.SSHKey)
	}
	if e.IdentityAgent != "/path/to/agent" {
		t.Errorf("Expected /path/to/agent, got %s", e.IdentityAgent)
	}
	if e.DryRun {
		t.Error("Expected DryRun false")
	}
	if e.Builder == nil {
		t.Error("Expected a default command builder")
	}
}

func TestExecutor_IsLocal(t *testing.T) {
	tests := []struct {
		target   string
		expected bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"", true},
		{"remote.example.com", false},
		{"192.168.1.100", false},
	}

	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			e := NewExecutor(tc.target, "", "", "", false)
			if e.IsLocal() != tc.expected {
				t.Errorf("IsLocal(%s) = %v, want %v", tc.target, e.IsLocal(), tc.expected)
			}
		})
	}
}

func TestExecutor_SetLogger(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	logger := &testLogger{}
	e.SetLogger(logger)

	// Verify logger is set (by running a command)
	e.DryRun = true
	e.Run("echo test")

	// SetLogger with nil should not panic
	e.SetLogger(nil)
}

func TestExecutor_Run_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	output, err := e.Run("echo hello")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "[DRY-RUN]") {
		t.Errorf("Expected dry-run output, got: %s", output)
	}
	if !strings.Contains(output, "echo hello") {
		t.Errorf("Expected command in output, got: %s", output)
	}
}

func TestExecutor_Run_Local(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	output, err := e.Run("echo hello")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(output) != "hello" {
		t.Errorf("Expected 'hello', got: %s", output)
	}
}

func TestExecutor_Run_LocalError(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	_, err := e.Run("exit 1")

	if err == nil {
		t.Error("Expected error for failed command")
	}
}

func TestExecutor_Run_LocalUsesShell(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	builder := NewMockCommandBuilder()
	e.Builder = builder

	if _, err := e.Run("echo hello && echo world"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a command to be built")
	}
	if !last.IsShell {
		t.Error("Expected local commands to run via the shell")
	}
	if len(last.Args) != 2 || last.Args[1] != "echo hello && echo world" {
		t.Errorf("Expected shell args ['-c', command], got: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteSSHArgs(t *testing.T) {
	e := NewExecutor("remote.example.com", "testuser", "/path/to/key", "/path/to/agent", false)
	builder := NewMockCommandBuilder()
	e.Builder = builder

	if _, err := e.Run("systemctl status presence-report"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a command to be built")
	}
	if last.Name != "ssh" {
		t.Errorf("Expected ssh command, got: %s", last.Name)
	}

	// Check for key argument
	keyFound := false
	for i, arg := range last.Args {
		if arg == "-i" && i+1 < len(last.Args) && last.Args[i+1] == "/path/to/key" {
			keyFound = true
			break
		}
	}
	if !keyFound {
		t.Errorf("Expected -i /path/to/key in args: %v", last.Args)
	}

	// Check for IdentityAgent
	agentFound := false
	for _, arg := range last.Args {
		if strings.Contains(arg, "IdentityAgent=/path/to/agent") {
			agentFound = true
			break
		}
	}
	if !agentFound {
		t.Errorf("Expected IdentityAgent=/path/to/agent in args: %v", last.Args)
	}

	// Check for target with user
	targetFound := false
	for _, arg := range last.Args {
		if arg == "testuser@remote.example.com" {
			targetFound = true
			break
		}
	}
	if !targetFound {
		t.Errorf("Expected testuser@remote.example.com in args: %v", last.Args)
	}

	// The command itself rides as the final argument
	if last.Args[len(last.Args)-1] != "systemctl status presence-report" {
		t.Errorf("Expected command as final arg, got: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteNoUser(t *testing.T) {
	e := NewExecutor("remote.example.com", "", "", "", false)
	builder := NewMockCommandBuilder()
	e.Builder = builder

	e.Run("echo hello")

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a command to be built")
	}

	// Should use target without @ since no user
	targetFound := false
	for _, arg := range last.Args {
		if arg == "remote.example.com" {
			targetFound = true
			break
		}
	}
	if !targetFound {
		t.Errorf("Expected remote.example.com in args: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteTargetWithAt(t *testing.T) {
	// If target already contains @, don't add user prefix
	e := NewExecutor("existing@remote.example.com", "ignored", "", "", false)
	builder := NewMockCommandBuilder()
	e.Builder = builder

	e.Run("echo hello")

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a command to be built")
	}

	targetFound := false
	for _, arg := range last.Args {
		if arg == "existing@remote.example.com" {
			targetFound = true
			break
		}
	}
	if !targetFound {
		t.Errorf("Expected existing@remote.example.com in args: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteFailure(t *testing.T) {
	e := NewExecutor("remote.example.com", "testuser", "", "", false)
	builder := NewMockCommandBuilder()
	builder.ExecutorFactory = func(name string, args []string) *MockCommandExecutor {
		return &MockCommandExecutor{
			Output: []byte("connection refused"),
			Err:    errors.New("exit status 255"),
		}
	}
	e.Builder = builder

	output, err := e.Run("uptime")
	if err == nil {
		t.Error("Expected error from failed SSH command")
	}
	if !strings.Contains(output, "connection refused") {
		t.Errorf("Expected captured output, got: %s", output)
	}
}

func TestExecutor_RunSudo_Remote(t *testing.T) {
	e := NewExecutor("remote.example.com", "testuser", "", "", false)
	builder := NewMockCommandBuilder()
	e.Builder = builder

	if _, err := e.RunSudo("systemctl restart presence-report"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a command to be built")
	}
	if last.Name != "ssh" {
		t.Errorf("Expected ssh command, got: %s", last.Name)
	}
	if last.Args[len(last.Args)-1] != "sudo systemctl restart presence-report" {
		t.Errorf("Expected sudo-prefixed command as final arg, got: %v", last.Args)
	}
}

func TestExecutor_RunSudo_Local(t *testing.T) {
	// Test that RunSudo prepends sudo (use a command that doesn't actually require sudo)
	e := NewExecutor("localhost", "", "", "", false)
	logger := &testLogger{}
	e.SetLogger(logger)

	// This will fail because 'sudo echo test' requires sudo, but we can check the command was constructed
	// We test with DryRun to verify the command format
	e.DryRun = true
	output, _ := e.RunSudo("echo test")

	if !strings.Contains(output, "sudo") {
		t.Errorf("Expected sudo in command, got: %s", output)
	}
}

func TestExecutor_RunSudo_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	output, err := e.RunSudo("cat /etc/passwd")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "[DRY-RUN]") {
		t.Errorf("Expected dry-run output, got: %s", output)
	}
	if !strings.Contains(output, "sudo") {
		t.Errorf("Expected sudo in output, got: %s", output)
	}
}

func TestExecutor_CopyFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	err := e.CopyFile("/source/file", "/dest/file")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestExecutor_CopyFile_Local(t *testing.T) {
	// Create temp files
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "source.txt")
	dstPath := filepath.Join(tmpDir, "dest.txt")

	if err := os.WriteFile(srcPath, []byte("test content"), 0644); err != nil {
		t.Fatalf("Failed to create source file: %v", err)
	}

	e := NewExecutor("localhost", "", "", "", false)
	err := e.CopyFile(srcPath, dstPath)

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	// Verify content was copied
	content, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("Failed to read destination file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Expected 'test content', got: %s", string(content))
	}
}

func TestExecutor_CopyFile_LocalMissingSrc(t *testing.T) {
	tmpDir := t.TempDir()
	e := NewExecutor("localhost", "", "", "", false)
	err := e.CopyFile(filepath.Join(tmpDir, "nonexistent.txt"), filepath.Join(tmpDir, "dest.txt"))

	if err == nil {
		t.Error("Expected error for missing source file")
	}
}

func TestExecutor_CopyFile_RemoteUsesSCP(t *testing.T) {
	e := NewExecutor("remote.example.com", "testuser", "/path/to/key", "", false)
	builder := NewMockCommandBuilder()
	e.Builder = builder

	if err := e.CopyFile("/local/build/presence-report", "/usr/local/bin/presence-report"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(builder.Commands) != 2 {
		t.Fatalf("Expected scp then mv, got %d commands: %v", len(builder.Commands), builder.Commands)
	}

	scp := builder.Commands[0]
	if scp.Name != "scp" {
		t.Errorf("Expected scp command, got: %s", scp.Name)
	}
	srcFound := false
	stagedFound := false
	for _, arg := range scp.Args {
		if arg == "/local/build/presence-report" {
			srcFound = true
		}
		if strings.Contains(arg, "testuser@remote.example.com:/tmp/presence-report-copy-") {
			stagedFound = true
		}
	}
	if !srcFound {
		t.Errorf("Expected source path in scp args: %v", scp.Args)
	}
	if !stagedFound {
		t.Errorf("Expected staged temp destination in scp args: %v", scp.Args)
	}

	// Privileged destination gets moved into place with sudo over SSH
	mv := builder.Commands[1]
	if mv.Name != "ssh" {
		t.Errorf("Expected ssh command for move, got: %s", mv.Name)
	}
	final := mv.Args[len(mv.Args)-1]
	if !strings.Contains(final, "sudo mv ") || !strings.Contains(final, "/usr/local/bin/presence-report") {
		t.Errorf("Expected sudo mv to destination, got: %s", final)
	}
}

func TestExecutor_WriteFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	err := e.WriteFile("/tmp/test.txt", "content")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestExecutor_WriteFile_Local(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "test.txt")

	e := NewExecutor("localhost", "", "", "", false)
	err := e.WriteFile(filePath, "test content")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Expected 'test content', got: %s", string(content))
	}
}

func TestExecutor_WriteFile_RemoteStdin(t *testing.T) {
	e := NewExecutor("remote.example.com", "testuser", "", "", false)
	builder := NewMockCommandBuilder()
	captured := &MockCommandExecutor{}
	builder.SetNextExecutor(captured)
	e.Builder = builder

	content := "#UDP_PORT=9944\n#MQTT_BROKER=tcp://localhost:1883\n"
	if err := e.WriteFile("/etc/default/presence-report", content); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if string(captured.Stdin) != content {
		t.Errorf("Expected file content on stdin, got: %s", captured.Stdin)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a command to be built")
	}
	if last.Name != "ssh" {
		t.Errorf("Expected ssh command, got: %s", last.Name)
	}
	if last.Args[len(last.Args)-1] != "cat > /etc/default/presence-report" {
		t.Errorf("Expected cat redirect as final arg, got: %v", last.Args)
	}
}

func TestExecutor_WriteFile_RemoteFailure(t *testing.T) {
	e := NewExecutor("remote.example.com", "testuser", "", "", false)
	builder := NewMockCommandBuilder()
	builder.SetNextExecutor(&MockCommandExecutor{
		Output: []byte("cat: permission denied"),
		Err:    errors.New("exit status 1"),
	})
	e.Builder = builder

	err := e.WriteFile("/etc/default/presence-report", "content")
	if err == nil {
		t.Fatal("Expected error from failed remote write")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Expected remote output in error, got: %v", err)
	}
}

func TestLogger_NopLogger(t *testing.T) {
	// Test that nopLogger doesn't panic
	logger := nopLogger{}
	logger.Debugf("test %s", "message")
}
