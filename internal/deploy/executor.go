// Package deploy provides command execution utilities for local and remote deployments.
package deploy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger defines the interface for debug logging.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// nopLogger is a no-op logger implementation.
type nopLogger struct{}

func (n nopLogger) Debugf(format string, args ...interface{}) {}

// Executor handles command execution on local or remote targets.
type Executor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool
	Logger        Logger
	Builder       CommandBuilder
}

// NewExecutor creates a new command executor.
func NewExecutor(target, sshUser, sshKey, identityAgent string, dryRun bool) *Executor {
	return &Executor{
		Target:        target,
		SSHUser:       sshUser,
		SSHKey:        sshKey,
		IdentityAgent: identityAgent,
		DryRun:        dryRun,
		Logger:        nopLogger{},
		Builder:       NewRealCommandBuilder(),
	}
}

// SetLogger sets the debug logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.Logger = logger
	}
}

// IsLocal returns true if target is localhost.
func (e *Executor) IsLocal() bool {
	return e.Target == "localhost" || e.Target == "127.0.0.1" || e.Target == ""
}

// Run executes a command.
func (e *Executor) Run(command string) (string, error) {
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute: %s", command), nil
	}

	e.Logger.Debugf("Executing: %s (target=%s, local=%v)", command, e.Target, e.IsLocal())

	if e.IsLocal() {
		output, err := e.runLocal(command)
		if err != nil {
			e.Logger.Debugf("Command failed: %v, output: %s", err, output)
		}
		return output, err
	}
	output, err := e.runSSH(command)
	if err != nil {
		e.Logger.Debugf("SSH command failed: %v, output: %s", err, output)
	}
	return output, err
}

// RunSudo executes a command with sudo.
func (e *Executor) RunSudo(command string) (string, error) {
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute (sudo): %s", command), nil
	}

	sudoCmd := fmt.Sprintf("sudo %s", command)
	e.Logger.Debugf("Executing (sudo): %s (target=%s, local=%v)", command, e.Target, e.IsLocal())

	if e.IsLocal() {
		output, err := e.runLocal(sudoCmd)
		if err != nil {
			e.Logger.Debugf("Sudo command failed: %v, output: %s", err, output)
		}
		return output, err
	}
	output, err := e.runSSH(sudoCmd)
	if err != nil {
		e.Logger.Debugf("SSH sudo command failed: %v, output: %s", err, output)
	}
	return output, err
}

// CopyFile copies a file to the target.
func (e *Executor) CopyFile(src, dst string) error {
	if e.DryRun {
		return nil
	}

	e.Logger.Debugf("Copying file: %s -> %s (target=%s, local=%v)", src, dst, e.Target, e.IsLocal())

	var err error
	if e.IsLocal() {
		err = e.copyLocal(src, dst)
	} else {
		err = e.copySSH(src, dst)
	}

	if err != nil {
		e.Logger.Debugf("Copy failed: %v", err)
	}
	return err
}

// WriteFile writes content to a file on the target.
func (e *Executor) WriteFile(path, content string) error {
	if e.DryRun {
		return nil
	}

	if e.IsLocal() {
		return os.WriteFile(path, []byte(content), 0644)
	}

	// For remote, pipe the content through SSH
	cmd := e.Builder.BuildCommand("ssh", e.sshArgs(fmt.Sprintf("cat > %s", path))...)
	cmd.SetStdin([]byte(content))

	if output, err := cmd.Run(); err != nil {
		return fmt.Errorf("ssh write failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (e *Executor) runLocal(command string) (string, error) {
	output, err := e.Builder.BuildShellCommand(command).Run()
	return string(output), err
}

func (e *Executor) runSSH(command string) (string, error) {
	output, err := e.Builder.BuildCommand("ssh", e.sshArgs(command)...).Run()
	return string(output), err
}

// sshArgs builds the ssh argument list for running command on the target.
func (e *Executor) sshArgs(command string) []string {
	args := []string{}

	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}

	if e.IdentityAgent != "" {
		args = append(args, "-o", fmt.Sprintf("IdentityAgent=%s", e.IdentityAgent))
	}

	// WARNING: The following options disable SSH strict host key checking and known_hosts verification.
	// This introduces a security risk: connections are vulnerable to man-in-the-middle (MITM) attacks.
	// These options are suitable ONLY for automation in trusted environments (e.g., CI/CD, ephemeral hosts).
	// For production deployments, REMOVE these options and configure known_hosts properly.
	args = append(args, "-o", "StrictHostKeyChecking=no")
	args = append(args, "-o", "UserKnownHostsFile=/dev/null")
	args = append(args, "-o", "LogLevel=ERROR")

	args = append(args, e.sshTarget(), command)

	return args
}

// sshTarget returns the destination in user@host form unless the target
// already carries a user.
func (e *Executor) sshTarget() string {
	target := e.Target
	if e.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.SSHUser, target)
	}
	return target
}

func (e *Executor) copyLocal(src, dst string) error {
	// For local, we need to use sudo to copy to certain system directories
	// Note: /var/folders is macOS temp directory, not a system directory
	needsSudo := (strings.HasPrefix(dst, "/usr") ||
		strings.HasPrefix(dst, "/etc") ||
		(strings.HasPrefix(dst, "/var") && !strings.HasPrefix(dst, "/var/folders")))

	if needsSudo {
		if output, err := e.Builder.BuildCommand("sudo", "cp", src, dst).Run(); err != nil {
			return fmt.Errorf("sudo cp failed: %w, output: %s", err, strings.TrimSpace(string(output)))
		}
		return nil
	}

	// Regular copy for non-privileged paths
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

func (e *Executor) copySSH(src, dst string) error {
	// Use scp for remote copy
	args := []string{}

	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}

	args = append(args, "-o", "StrictHostKeyChecking=no")
	args = append(args, "-o", "UserKnownHostsFile=/dev/null")

	// First copy to temp directory
	tempPath := fmt.Sprintf("/tmp/presence-report-copy-%d", time.Now().Unix())
	args = append(args, src, fmt.Sprintf("%s:%s", e.sshTarget(), tempPath))

	e.Logger.Debugf("SCP command: scp %v", args)
	if output, err := e.Builder.BuildCommand("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}

	// Then move to final destination with sudo if needed
	if tempPath != dst {
		if strings.HasPrefix(dst, "/usr") || strings.HasPrefix(dst, "/etc") || strings.HasPrefix(dst, "/var") {
			_, err := e.RunSudo(fmt.Sprintf("mv %s %s", tempPath, dst))
			return err
		}

		// Move to user directory without sudo
		_, err := e.Run(fmt.Sprintf("mv %s %s", tempPath, dst))
		return err
	}

	return nil
}
