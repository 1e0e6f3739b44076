package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/presence.report/internal/deploy"
)

const version = "0.2.0"

var DebugMode bool

func debugLog(format string, args ...interface{}) {
	if DebugMode {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "install":
		handleInstall(args)
	case "upgrade":
		handleUpgrade(args)
	case "status":
		handleStatus(args)
	case "health":
		handleHealth(args)
	case "rollback":
		handleRollback(args)
	case "backup":
		handleBackup(args)
	case "config":
		handleConfig(args)
	case "version":
		fmt.Printf("presence-deploy version %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`presence-deploy - Deployment manager for presence.report

Usage: presence-deploy <command> [options]

Commands:
  install    Install the presence-report service on a host
  upgrade    Upgrade presence-report to a newer version
  status     Check service status (use --scan for detailed disk analysis)
  health     Perform health check on running service
  rollback   Rollback to previous version
  backup     Backup database and configuration
  config     Manage the deployed service configuration
  version    Show presence-deploy version
  help       Show this help message

Common Flags:
  --target <host>      Target host (default: localhost)
                       Can be a hostname, IP, or SSH config host alias
  --ssh-user <user>    SSH user for remote deployment
                       Defaults to ~/.ssh/config or current user
  --ssh-key <path>     SSH private key path
                       Defaults to ~/.ssh/config
  --dry-run            Show what would be done without executing

SSH Config Support:
  presence-deploy automatically reads ~/.ssh/config for host configuration.
  If a host is defined in your SSH config, the tool will use:
    - HostName (IP or domain)
    - User
    - IdentityFile (SSH key)
    - IdentityAgent

  Command-line flags override SSH config values.

Examples:
  # Install locally
  presence-deploy install --binary ./presence-report-linux-arm64

  # Install using SSH config host alias
  presence-deploy install --target lobby-pi --binary ./presence-report-linux-arm64

  # Install on remote Pi with explicit credentials
  presence-deploy install --target pi@192.168.1.100 --ssh-key ~/.ssh/id_rsa --binary ./presence-report-linux-arm64

  # Check status using SSH config
  presence-deploy status --target lobby-pi

  # Upgrade local installation
  presence-deploy upgrade --binary ./presence-report-linux-arm64

  # Health check on remote host
  presence-deploy health --target lobby-pi

For more information, see: https://github.com/banshee-data/presence.report`)
}

// resolveTarget resolves SSH connection details for a subcommand, falling
// back to the current user when neither flags nor ~/.ssh/config name one.
func resolveTarget(target, sshUser, sshKey string) (host, user, key, agent string) {
	host, user, key, agent, err := deploy.ResolveSSHTarget(target, sshUser, sshKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve SSH config: %v\n", err)
		os.Exit(1)
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	return host, user, key, agent
}

func handleInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host for installation")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	binaryPath := fs.String("binary", "", "Path to presence-report binary (required)")
	dbPath := fs.String("db-path", "", "Path to existing database to seed the installation with")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	DebugMode = *debug

	if *binaryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --binary flag is required. Specify the path to the presence-report binary (e.g., --binary ./presence-report-linux-arm64)")
		fs.Usage()
		os.Exit(1)
	}

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	installer := &Installer{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
		BinaryPath:    *binaryPath,
		DBPath:        *dbPath,
		DryRun:        *dryRun,
	}

	if err := installer.Install(); err != nil {
		fmt.Fprintf(os.Stderr, "Installation failed: %v\n", err)
		os.Exit(1)
	}
}

func handleUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	binaryPath := fs.String("binary", "", "Path to new presence-report binary (required)")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")
	noBackup := fs.Bool("no-backup", false, "Skip backup before upgrade")
	noMigrate := fs.Bool("no-migrate", false, "Skip database migrations (migrations run by default)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	DebugMode = *debug

	if *binaryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --binary flag is required. Specify the path to the presence-report binary (e.g., --binary ./presence-report-linux-arm64)")
		fs.Usage()
		os.Exit(1)
	}

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	upgrader := &Upgrader{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
		BinaryPath:    *binaryPath,
		DryRun:        *dryRun,
		NoBackup:      *noBackup,
		NoMigrate:     *noMigrate,
	}

	if err := upgrader.Upgrade(); err != nil {
		fmt.Fprintf(os.Stderr, "Upgrade failed: %v\n", err)
		os.Exit(1)
	}
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	apiPort := fs.Int("api-port", 8080, "API server port")
	timeout := fs.Int("timeout", 30, "Timeout in seconds")
	debug := fs.Bool("debug", false, "Enable debug logging")
	scan := fs.Bool("scan", false, "Perform detailed disk scan to find largest files and directories")
	fs.Parse(args)

	DebugMode = *debug

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	monitor := &Monitor{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
		APIPort:       *apiPort,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	// Show progress spinner while gathering status
	done := make(chan bool)
	go func() {
		spinner := NewSpinner()
		for {
			select {
			case <-done:
				fmt.Print("\r\033[K") // Clear spinner line
				return
			default:
				fmt.Print(spinner.Next())
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()

	status, err := monitor.GetStatus(ctx)
	done <- true

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get status: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(status.FormatStatus())

	if *scan {
		fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println("🔍 Detailed Disk Scan")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

		scanDone := make(chan bool)
		go func() {
			spinner := NewSpinner()
			for {
				select {
				case <-scanDone:
					fmt.Print("\r\033[K")
					return
				default:
					fmt.Print(spinner.Next())
					time.Sleep(100 * time.Millisecond)
				}
			}
		}()

		report, err := monitor.ScanDiskUsage(ctx)
		scanDone <- true

		if err != nil {
			fmt.Fprintf(os.Stderr, "Disk scan failed: %v\n", err)
		} else {
			fmt.Print(report)
		}
	}
}

func handleHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	apiPort := fs.Int("api-port", 8080, "API server port")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	DebugMode = *debug

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	monitor := &Monitor{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
		APIPort:       *apiPort,
	}

	health, err := monitor.CheckHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	if !health.Healthy {
		fmt.Printf("Service is UNHEALTHY: %s\n%s\n", health.Message, health.Details)
		os.Exit(1)
	}

	fmt.Printf("Service is HEALTHY\n%s\n", health.Details)
}

func handleRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	DebugMode = *debug

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	rollback := &Rollback{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
		DryRun:        *dryRun,
	}

	if err := rollback.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
		os.Exit(1)
	}
}

func handleBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	outputDir := fs.String("output", ".", "Output directory for backup")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	DebugMode = *debug

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	backup := &Backup{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
		OutputDir:     *outputDir,
	}

	if err := backup.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Backup failed: %v\n", err)
		os.Exit(1)
	}
}

func handleConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	target := fs.String("target", "localhost", "Target host")
	sshUser := fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)")
	sshKey := fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)")
	show := fs.Bool("show", false, "Show current configuration")
	edit := fs.Bool("edit", false, "Edit configuration")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	DebugMode = *debug

	host, user, key, agent := resolveTarget(*target, *sshUser, *sshKey)

	cfg := &ConfigManager{
		Target:        host,
		SSHUser:       user,
		SSHKey:        key,
		IdentityAgent: agent,
	}

	if *show {
		if err := cfg.Show(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to show config: %v\n", err)
			os.Exit(1)
		}
	} else if *edit {
		if err := cfg.Edit(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to edit config: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Use --show or --edit flag")
		fs.Usage()
		os.Exit(1)
	}
}
