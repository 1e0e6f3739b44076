package main

import (
	"fmt"
	"strings"

	"github.com/banshee-data/presence.report/internal/deploy"
)

// Rollback handles rolling back to a previous version
type Rollback struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool
}

// Execute performs the rollback
func (r *Rollback) Execute() error {
	exec := deploy.NewExecutor(r.Target, r.SSHUser, r.SSHKey, r.IdentityAgent, r.DryRun)

	fmt.Println("Starting rollback to previous version...")

	// Step 1: Find most recent backup
	backupDir, err := r.findLatestBackup(exec)
	if err != nil {
		return fmt.Errorf("failed to find backup: %w", err)
	}

	fmt.Printf("Found backup: %s\n", backupDir)

	// Step 2: Confirm rollback
	if !r.DryRun {
		fmt.Print("Are you sure you want to rollback? This will stop the service and restore the backup. [y/N]: ")
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	// Step 3: Stop service
	if err := r.stopService(exec); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	// Step 4: Restore binary
	if err := r.restoreBinary(exec, backupDir); err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	// Step 5: Optionally restore database
	if err := r.restoreDatabase(exec, backupDir); err != nil {
		fmt.Printf("Warning: could not restore database: %v\n", err)
	}

	// Step 6: Start service
	if err := r.startService(exec); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Step 7: Verify service is healthy
	if err := r.verifyHealth(exec); err != nil {
		return fmt.Errorf("health check failed after rollback: %w", err)
	}

	fmt.Println("\n✓ Rollback completed successfully!")
	return nil
}

// pickLatestBackup returns the first non-empty entry from `ls -1t` output,
// which is the most recently modified backup directory.
func pickLatestBackup(lsOutput string) (string, error) {
	for _, line := range strings.Split(lsOutput, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("no backups found")
}

func (r *Rollback) findLatestBackup(exec *deploy.Executor) (string, error) {
	fmt.Println("Looking for backups...")

	backupsRoot := dataDir + "/backups"

	if exec.DryRun {
		return backupsRoot + "/<latest>", nil
	}

	// List backup directories sorted by modification time, newest first
	output, err := exec.RunSudo(fmt.Sprintf("ls -1t %s/ 2>/dev/null", backupsRoot))
	if err != nil {
		return "", fmt.Errorf("no backups found")
	}

	backupName, err := pickLatestBackup(output)
	if err != nil {
		return "", fmt.Errorf("no backups found in %s/", backupsRoot)
	}

	backupDir := fmt.Sprintf("%s/%s", backupsRoot, backupName)

	// Verify backup contains binary
	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s/%s && echo 'exists' || echo 'missing'", backupDir, serviceName))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		return "", fmt.Errorf("backup directory exists but binary not found: %s", backupDir)
	}

	return backupDir, nil
}

func (r *Rollback) stopService(exec *deploy.Executor) error {
	fmt.Println("Stopping service...")

	_, err := exec.RunSudo("systemctl stop presence-report.service")
	if err != nil {
		return err
	}

	exec.Run("sleep 2")
	fmt.Println("  ✓ Service stopped")
	return nil
}

func (r *Rollback) restoreBinary(exec *deploy.Executor, backupDir string) error {
	fmt.Printf("Restoring binary from: %s\n", backupDir)

	binaryPath := fmt.Sprintf("%s/%s", backupDir, serviceName)

	_, err := exec.RunSudo(fmt.Sprintf("cp %s %s", binaryPath, installPath))
	if err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	_, err = exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary restored")
	return nil
}

func (r *Rollback) restoreDatabase(exec *deploy.Executor, backupDir string) error {
	dbBackup := fmt.Sprintf("%s/%s", backupDir, dbFileName)

	// Check if database backup exists
	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbBackup))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		fmt.Println("  ⊘ No database backup found, keeping current database")
		return nil
	}

	fmt.Print("Database backup found. Restore it? This will replace current data. [y/N]: ")
	var confirm string
	if !r.DryRun {
		fmt.Scanln(&confirm)
	} else {
		confirm = "n"
	}

	if strings.ToLower(confirm) != "y" {
		fmt.Println("  ⊘ Keeping current database")
		return nil
	}

	fmt.Println("  Restoring database...")

	dbPath := fmt.Sprintf("%s/%s", dataDir, dbFileName)
	_, err = exec.RunSudo(fmt.Sprintf("cp %s %s", dbBackup, dbPath))
	if err != nil {
		return err
	}

	_, err = exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dbPath))
	if err != nil {
		return err
	}

	fmt.Println("  ✓ Database restored")
	return nil
}

func (r *Rollback) startService(exec *deploy.Executor) error {
	fmt.Println("Starting service...")

	_, err := exec.RunSudo("systemctl start presence-report.service")
	if err != nil {
		return err
	}

	exec.Run("sleep 3")
	fmt.Println("  ✓ Service started")
	return nil
}

func (r *Rollback) verifyHealth(exec *deploy.Executor) error {
	fmt.Println("Verifying service health...")

	if exec.DryRun {
		fmt.Println("  ✓ Service is running (dry-run)")
		return nil
	}

	output, err := exec.RunSudo("systemctl is-active presence-report.service")
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service is not active")
	}

	fmt.Println("  ✓ Service is running")
	return nil
}
