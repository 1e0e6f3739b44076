package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/banshee-data/presence.report/internal/deploy"
)

// ConfigManager handles configuration management
type ConfigManager struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
}

// Show displays the current configuration
func (c *ConfigManager) Show() error {
	exec := deploy.NewExecutor(c.Target, c.SSHUser, c.SSHKey, c.IdentityAgent, false)

	fmt.Println("Current presence.report configuration:")
	fmt.Println()

	// Show service file
	fmt.Println("=== Service Configuration ===")
	serviceOutput, err := exec.RunSudo("cat /etc/systemd/system/presence-report.service")
	if err != nil {
		return fmt.Errorf("failed to read service file: %w", err)
	}
	fmt.Println(serviceOutput)

	// Show environment file
	fmt.Println("\n=== Environment File ===")
	envOutput, err := exec.RunSudo(fmt.Sprintf("cat %s 2>/dev/null", envFile))
	if err != nil || strings.TrimSpace(envOutput) == "" {
		fmt.Printf("(no %s)\n", envFile)
	} else {
		fmt.Println(envOutput)
	}

	// Show data directory info
	fmt.Println("\n=== Data Directory ===")
	dataInfo, err := exec.RunSudo(fmt.Sprintf("ls -lh %s/", dataDir))
	if err != nil {
		fmt.Printf("Warning: could not read data directory: %v\n", err)
	} else {
		fmt.Println(dataInfo)
	}

	// Show service status
	fmt.Println("\n=== Service Status ===")
	statusOutput, err := exec.RunSudo("systemctl status presence-report.service --no-pager")
	if err != nil {
		fmt.Printf("Warning: could not get service status: %v\n", err)
	} else {
		fmt.Println(statusOutput)
	}

	// Show recent logs
	fmt.Println("\n=== Recent Logs (last 10 lines) ===")
	logsOutput, err := exec.RunSudo("journalctl -u presence-report.service -n 10 --no-pager")
	if err != nil {
		fmt.Printf("Warning: could not read logs: %v\n", err)
	} else {
		fmt.Println(logsOutput)
	}

	return nil
}

// validateExecStart normalizes and validates a user-supplied ExecStart
// line. Shell metacharacters are rejected outright since the line is
// written into the unit file verbatim.
func validateExecStart(line string) (string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "ExecStart=") {
		line = "ExecStart=" + line
	}
	if strings.ContainsAny(line, "|;&$`\\\"'") {
		return "", fmt.Errorf("invalid ExecStart line: contains disallowed characters")
	}
	return line, nil
}

// replaceExecStart swaps the ExecStart line in unit file contents.
func replaceExecStart(contents, newExecStart string) (string, error) {
	lines := strings.Split(contents, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "ExecStart=") {
			lines[i] = newExecStart
			return strings.Join(lines, "\n"), nil
		}
	}
	return "", fmt.Errorf("ExecStart line not found in service file")
}

// Edit allows editing the service configuration
func (c *ConfigManager) Edit() error {
	exec := deploy.NewExecutor(c.Target, c.SSHUser, c.SSHKey, c.IdentityAgent, false)

	fmt.Println("Interactive configuration editing")
	fmt.Println("==================================")
	fmt.Println()

	// Get current ExecStart line
	grepOutput, err := exec.RunSudo("grep '^ExecStart=' /etc/systemd/system/presence-report.service")
	if err != nil {
		return fmt.Errorf("failed to read service file: %w", err)
	}

	currentExecStart := strings.TrimSpace(grepOutput)
	fmt.Printf("Current ExecStart:\n%s\n\n", currentExecStart)

	fmt.Println("Common configuration options:")
	fmt.Println("  -listen :PORT             Change API port (default: 8080)")
	fmt.Println("  -source serial|udp        Change detection source")
	fmt.Println("  -serial-port /dev/ttyXXX  Change camera serial port")
	fmt.Println("  -udp-port PORT            Change UDP frame port (default: 9944)")
	fmt.Println("  -mqtt-broker HOST:PORT    Publish occupancy events over MQTT")
	fmt.Println("  -tuning PATH              Load tracker tuning from a JSON file")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  ExecStart=/usr/local/bin/presence-report -db /var/lib/presence-report/presence_data.db -listen :8080 -source serial")
	fmt.Println()
	fmt.Print("Enter new ExecStart line (or press Enter to keep current): ")

	reader := bufio.NewReader(os.Stdin)
	newExecStart, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	newExecStart = strings.TrimSpace(newExecStart)

	if newExecStart == "" {
		fmt.Println("No changes made")
		return nil
	}

	newExecStart, err = validateExecStart(newExecStart)
	if err != nil {
		return err
	}

	// Update service file using safe file editing (not sed with user input)
	fmt.Println("\nUpdating service file...")

	// Read the current service file
	serviceFilePath := "/etc/systemd/system/presence-report.service"
	contents, err := exec.RunSudo(fmt.Sprintf("cat %s", serviceFilePath))
	if err != nil {
		return fmt.Errorf("failed to read service file: %w", err)
	}

	newContents, err := replaceExecStart(contents, newExecStart)
	if err != nil {
		return err
	}

	// Write to a temp file and move it into place
	tmpPath := "/tmp/presence-report.service.tmp"
	if err := exec.WriteFile(tmpPath, newContents); err != nil {
		return fmt.Errorf("failed to write temporary service file: %w", err)
	}

	_, err = exec.RunSudo(fmt.Sprintf("mv %s %s", tmpPath, serviceFilePath))
	if err != nil {
		return fmt.Errorf("failed to update service file: %w", err)
	}

	// Reload systemd
	fmt.Println("Reloading systemd...")
	_, err = exec.RunSudo("systemctl daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	// Ask if user wants to restart service
	fmt.Print("\nRestart service now to apply changes? [y/N]: ")
	var restart string
	fmt.Scanln(&restart)

	if strings.ToLower(restart) == "y" {
		fmt.Println("Restarting service...")
		_, err = exec.RunSudo("systemctl restart presence-report.service")
		if err != nil {
			return fmt.Errorf("failed to restart service: %w", err)
		}

		// Wait and check status
		exec.Run("sleep 2")

		statusOutput, err := exec.RunSudo("systemctl is-active presence-report.service")
		if err != nil || strings.TrimSpace(statusOutput) != "active" {
			fmt.Println("⚠ Warning: Service may not have started properly")
			fmt.Println("Check status with: presence-deploy status")
			return nil
		}

		fmt.Println("  ✓ Service restarted successfully")
	} else {
		fmt.Println("Configuration updated. Restart service to apply changes:")
		fmt.Println("  sudo systemctl restart presence-report.service")
	}

	return nil
}
