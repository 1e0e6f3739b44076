package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/presence.report/internal/deploy"
)

// Installer handles installation of the presence.report service
type Installer struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	BinaryPath    string
	DBPath        string
	DryRun        bool
}

const (
	serviceName    = "presence-report"
	installPath    = "/usr/local/bin/presence-report"
	dataDir        = "/var/lib/presence-report"
	serviceFile    = "presence-report.service"
	serviceUser    = "presence"
	envFile        = "/etc/default/presence-report"
	dbFileName     = "presence_data.db"
	serviceContent = `[Unit]
Description=Presence.report occupancy monitor service
After=network.target

[Service]
User=presence
Group=presence
Type=simple
EnvironmentFile=-/etc/default/presence-report
ExecStart=/usr/local/bin/presence-report -db /var/lib/presence-report/presence_data.db
WorkingDirectory=/var/lib/presence-report
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=presence-report

[Install]
WantedBy=multi-user.target
`
	envFileContent = `# Environment for the presence-report service.
# Values here are read at startup; command-line flags in the unit file win.
#
# Frame source: serial, udp, replay:<path>, or pcap:<path>
#PRESENCE_SOURCE=serial
#SERIAL_PORT=/dev/ttyACM0
#UDP_PORT=9944
#
# Process every Nth frame (0 = every frame)
#SKIP_FRAMES=0
#
# Publish occupancy changes over MQTT
#MQTT_BROKER=tcp://localhost:1883
#MQTT_TOPIC_PREFIX=presence
`
)

// Install performs the installation
func (i *Installer) Install() error {
	exec := deploy.NewExecutor(i.Target, i.SSHUser, i.SSHKey, i.IdentityAgent, i.DryRun)

	fmt.Println("Starting installation of presence.report...")

	// Step 1: Validate binary exists
	if err := i.validateBinary(); err != nil {
		return fmt.Errorf("binary validation failed: %w", err)
	}

	// Step 2: Check if already installed
	if installed, err := i.checkExisting(exec); err != nil {
		return fmt.Errorf("failed to check existing installation: %w", err)
	} else if installed {
		fmt.Println("presence.report is already installed. Use 'upgrade' command to update.")
		return nil
	}

	// Step 3: Create service user
	if err := i.createServiceUser(exec); err != nil {
		return fmt.Errorf("failed to create service user: %w", err)
	}

	// Step 4: Create data directory
	if err := i.createDataDirectory(exec); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Step 5: Install binary
	if err := i.installBinary(exec); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}

	// Step 6: Install systemd service and environment file
	if err := i.installService(exec); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}

	// Step 7: Seed database if provided
	if i.DBPath != "" {
		if err := i.seedDatabase(exec); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	// Step 8: Start service
	if err := i.startService(exec); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	fmt.Println("\n✓ Installation completed successfully!")
	fmt.Println("\nUseful commands:")
	fmt.Println("  Check status:  presence-deploy status")
	fmt.Println("  Health check:  presence-deploy health")
	fmt.Println("  View logs:     sudo journalctl -u presence-report.service -f")

	return nil
}

func (i *Installer) validateBinary() error {
	fmt.Printf("Validating binary: %s\n", i.BinaryPath)

	if _, err := os.Stat(i.BinaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary not found: %s", i.BinaryPath)
	}

	// Check if binary is executable
	info, err := os.Stat(i.BinaryPath)
	if err != nil {
		return err
	}

	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary is not executable: %s", i.BinaryPath)
	}

	fmt.Println("  ✓ Binary validated")
	return nil
}

func (i *Installer) checkExisting(exec *deploy.Executor) (bool, error) {
	fmt.Println("Checking for existing installation...")

	// Check if service file exists
	output, err := exec.Run("test -f /etc/systemd/system/presence-report.service && echo 'exists' || echo 'not found'")
	if err != nil {
		return false, err
	}

	if strings.TrimSpace(output) == "exists" {
		return true, nil
	}

	fmt.Println("  ✓ No existing installation found")
	return false, nil
}

func (i *Installer) createServiceUser(exec *deploy.Executor) error {
	fmt.Printf("Creating service user '%s'...\n", serviceUser)

	// Check if user exists
	output, err := exec.Run(fmt.Sprintf("id %s 2>/dev/null && echo 'exists' || echo 'not found'", serviceUser))
	if err != nil {
		return err
	}

	if strings.Contains(output, "exists") {
		fmt.Printf("  ✓ User '%s' already exists\n", serviceUser)
	} else {
		_, err = exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", serviceUser))
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Printf("  ✓ User '%s' created\n", serviceUser)
	}

	// The camera head arrives over a USB serial adapter; the service
	// user needs dialout membership to open it.
	_, err = exec.RunSudo(fmt.Sprintf("usermod -aG dialout %s", serviceUser))
	if err != nil {
		return fmt.Errorf("failed to add user to dialout group: %w", err)
	}
	fmt.Printf("  ✓ User '%s' added to dialout group\n", serviceUser)

	return nil
}

func (i *Installer) createDataDirectory(exec *deploy.Executor) error {
	fmt.Printf("Creating data directory: %s\n", dataDir)

	_, err := exec.RunSudo(fmt.Sprintf("mkdir -p %s && chown %s:%s %s", dataDir, serviceUser, serviceUser, dataDir))
	if err != nil {
		return err
	}

	fmt.Printf("  ✓ Data directory created\n")
	return nil
}

func (i *Installer) installBinary(exec *deploy.Executor) error {
	fmt.Printf("Installing binary to %s...\n", installPath)

	// Copy binary to remote host if needed
	if err := exec.CopyFile(i.BinaryPath, installPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	// Set permissions
	_, err := exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary installed")
	return nil
}

func (i *Installer) installService(exec *deploy.Executor) error {
	fmt.Println("Installing systemd service...")

	// Write service file to temp location
	tempFile := "/tmp/presence-report.service"
	if err := exec.WriteFile(tempFile, serviceContent); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	// Move to systemd directory
	_, err := exec.RunSudo(fmt.Sprintf("mv %s /etc/systemd/system/%s", tempFile, serviceFile))
	if err != nil {
		return fmt.Errorf("failed to install service file: %w", err)
	}

	// Write the environment file unless one already exists; an existing
	// file carries operator-set values we must not clobber.
	output, err := exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", envFile))
	if err != nil {
		return err
	}
	if strings.TrimSpace(output) == "exists" {
		fmt.Printf("  ⊘ Keeping existing %s\n", envFile)
	} else {
		tempEnv := "/tmp/presence-report.env"
		if err := exec.WriteFile(tempEnv, envFileContent); err != nil {
			return fmt.Errorf("failed to write environment file: %w", err)
		}
		if _, err := exec.RunSudo(fmt.Sprintf("mv %s %s", tempEnv, envFile)); err != nil {
			return fmt.Errorf("failed to install environment file: %w", err)
		}
		fmt.Printf("  ✓ Environment file installed at %s\n", envFile)
	}

	// Reload systemd
	_, err = exec.RunSudo("systemctl daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	// Enable service
	_, err = exec.RunSudo(fmt.Sprintf("systemctl enable %s", serviceName))
	if err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}

	fmt.Println("  ✓ Service installed and enabled")
	return nil
}

func (i *Installer) seedDatabase(exec *deploy.Executor) error {
	fmt.Printf("Seeding database from: %s\n", i.DBPath)

	dbDest := filepath.Join(dataDir, dbFileName)

	// Copy database
	if err := exec.CopyFile(i.DBPath, dbDest); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	// Set ownership
	_, err := exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dbDest))
	if err != nil {
		return fmt.Errorf("failed to set database ownership: %w", err)
	}

	fmt.Println("  ✓ Database seeded")
	return nil
}

func (i *Installer) startService(exec *deploy.Executor) error {
	fmt.Printf("Starting %s service...\n", serviceName)

	_, err := exec.RunSudo(fmt.Sprintf("systemctl start %s", serviceName))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	if exec.DryRun {
		fmt.Println("  ✓ Service started (dry-run)")
		return nil
	}

	// Wait a moment for service to start
	exec.Run("sleep 2")

	// Check if service is running
	output, err := exec.RunSudo(fmt.Sprintf("systemctl is-active %s", serviceName))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service failed to start properly")
	}

	fmt.Println("  ✓ Service started successfully")
	return nil
}
