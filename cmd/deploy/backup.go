package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/presence.report/internal/deploy"
	"github.com/banshee-data/presence.report/internal/security"
)

// Backup pulls the deployed binary, database, and configuration from the
// target into a timestamped directory on this machine.
type Backup struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	OutputDir     string
}

// backupDirName builds the local directory name for one backup run. The
// target is part of the name so backups of different devices sort apart;
// it is sanitized because targets can carry user@ prefixes.
func backupDirName(target string, now time.Time) string {
	return fmt.Sprintf("presence-report-backup-%s-%s",
		security.SanitizeFilename(target), now.Format("20060102-150405"))
}

// Execute performs the backup
func (b *Backup) Execute() error {
	exec := deploy.NewExecutor(b.Target, b.SSHUser, b.SSHKey, b.IdentityAgent, false)

	fmt.Println("Starting backup of presence.report...")

	now := time.Now()
	timestamp := now.Format("20060102-150405")
	backupName := backupDirName(b.Target, now)

	// Step 1: Create local backup directory
	localBackupDir := filepath.Join(b.OutputDir, backupName)
	if err := os.MkdirAll(localBackupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	fmt.Printf("Backup directory: %s\n", localBackupDir)

	// Step 2: Backup binary
	if err := b.backupBinary(exec, localBackupDir); err != nil {
		return fmt.Errorf("failed to backup binary: %w", err)
	}

	// Step 3: Backup database
	if err := b.backupDatabase(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup database: %v\n", err)
	}

	// Step 4: Backup tuning file
	if err := b.backupTuning(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup tuning file: %v\n", err)
	}

	// Step 5: Backup service and environment files
	if err := b.backupServiceFiles(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup service files: %v\n", err)
	}

	// Step 6: Create metadata file
	if err := b.createMetadata(exec, localBackupDir, timestamp); err != nil {
		fmt.Printf("Warning: could not create metadata: %v\n", err)
	}

	fmt.Printf("\n✓ Backup completed successfully!\n")
	fmt.Printf("Backup saved to: %s\n", localBackupDir)

	return nil
}

// fileExistsOnTarget checks for a file on the target with sudo, since most
// deployment artifacts are root-owned.
func fileExistsOnTarget(exec *deploy.Executor, path string) bool {
	output, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", path))
	return err == nil && strings.TrimSpace(output) == "exists"
}

// copyFromTarget copies a root-owned file from the target into the local
// backup directory. Remote targets stage through /tmp with world-readable
// permissions so scp, running as the SSH user, can read the file.
func (b *Backup) copyFromTarget(exec *deploy.Executor, srcPath, destPath string) error {
	if exec.IsLocal() {
		if _, err := exec.RunSudo(fmt.Sprintf("cp %s %s", srcPath, destPath)); err != nil {
			return err
		}
		_, err := exec.RunSudo(fmt.Sprintf("chmod 644 %s", destPath))
		return err
	}

	tempPath := fmt.Sprintf("/tmp/%s.backup", filepath.Base(srcPath))
	if _, err := exec.RunSudo(fmt.Sprintf("cp %s %s && chmod 644 %s", srcPath, tempPath, tempPath)); err != nil {
		return err
	}

	scpArgs := []string{}
	if b.SSHKey != "" {
		scpArgs = append(scpArgs, "-i", b.SSHKey)
	}

	target := b.Target
	if b.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", b.SSHUser, target)
	}

	args := append(scpArgs, fmt.Sprintf("%s:%s", target, tempPath), destPath)

	// The scp leg runs on this machine, pulling from the target.
	local := deploy.NewExecutor("localhost", "", "", "", false)
	if _, err := local.Run(fmt.Sprintf("scp %s", strings.Join(args, " "))); err != nil {
		return err
	}

	exec.Run(fmt.Sprintf("rm %s", tempPath))
	return nil
}

func (b *Backup) backupBinary(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up binary...")

	if err := b.copyFromTarget(exec, installPath, filepath.Join(backupDir, serviceName)); err != nil {
		return err
	}

	fmt.Println("  ✓ Binary backed up")
	return nil
}

func (b *Backup) backupDatabase(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up database...")

	dbPath := filepath.Join(dataDir, dbFileName)
	if !fileExistsOnTarget(exec, dbPath) {
		fmt.Println("  ⊘ No database found")
		return nil
	}

	dbDest := filepath.Join(backupDir, dbFileName)
	if err := b.copyFromTarget(exec, dbPath, dbDest); err != nil {
		return err
	}

	if info, err := os.Stat(dbDest); err == nil {
		fmt.Printf("  ✓ Database backed up (%.1f MB)\n", float64(info.Size())/(1<<20))
	} else {
		fmt.Println("  ✓ Database backed up")
	}

	return nil
}

func (b *Backup) backupTuning(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up tuning file...")

	tuningPath := filepath.Join(dataDir, "tuning.json")
	if !fileExistsOnTarget(exec, tuningPath) {
		fmt.Println("  ⊘ No tuning file found")
		return nil
	}

	if err := b.copyFromTarget(exec, tuningPath, filepath.Join(backupDir, "tuning.json")); err != nil {
		return err
	}

	fmt.Println("  ✓ Tuning file backed up")
	return nil
}

func (b *Backup) backupServiceFiles(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up service file...")

	unitPath := "/etc/systemd/system/" + serviceFile
	if err := b.copyFromTarget(exec, unitPath, filepath.Join(backupDir, serviceFile)); err != nil {
		return err
	}
	fmt.Println("  ✓ Service file backed up")

	if fileExistsOnTarget(exec, envFile) {
		if err := b.copyFromTarget(exec, envFile, filepath.Join(backupDir, "presence-report.env")); err != nil {
			return err
		}
		fmt.Println("  ✓ Environment file backed up")
	} else {
		fmt.Println("  ⊘ No environment file found")
	}

	return nil
}

// formatBackupMetadata renders the README.txt dropped into every backup
// directory, including manual restore instructions.
func formatBackupMetadata(target, timestamp, version, status string) string {
	return fmt.Sprintf(`Presence.report Backup
======================
Timestamp: %s
Target: %s
Binary Version: %s
Service Status: %s

Files included:
- presence-report (binary)
- presence_data.db (database, when present)
- tuning.json (tracker tuning, when present)
- presence-report.service (systemd service file)
- presence-report.env (environment file, when present)

To restore this backup:
1. Stop the service: sudo systemctl stop presence-report.service
2. Restore binary: sudo cp presence-report /usr/local/bin/presence-report
3. Restore database: sudo cp presence_data.db /var/lib/presence-report/presence_data.db
4. Restore service: sudo cp presence-report.service /etc/systemd/system/
5. Restore environment: sudo cp presence-report.env /etc/default/presence-report
6. Reload systemd: sudo systemctl daemon-reload
7. Start service: sudo systemctl start presence-report.service
`, timestamp, target, version, status)
}

func (b *Backup) createMetadata(exec *deploy.Executor, backupDir, timestamp string) error {
	fmt.Println("Creating backup metadata...")

	// Get version info if possible
	versionOutput, _ := exec.Run(fmt.Sprintf("%s -version 2>&1 || echo 'unknown'", installPath))

	// Get service status
	statusOutput, _ := exec.RunSudo("systemctl is-active presence-report.service 2>&1 || echo 'unknown'")

	metadata := formatBackupMetadata(b.Target, timestamp, strings.TrimSpace(versionOutput), strings.TrimSpace(statusOutput))

	metadataFile := filepath.Join(backupDir, "README.txt")
	if err := os.WriteFile(metadataFile, []byte(metadata), 0644); err != nil {
		return err
	}

	fmt.Println("  ✓ Metadata created")
	return nil
}
