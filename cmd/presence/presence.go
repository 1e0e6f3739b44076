package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/presence.report/internal/api"
	"github.com/banshee-data/presence.report/internal/camera"
	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/emitter"
	"github.com/banshee-data/presence.report/internal/serialmux"
	"github.com/banshee-data/presence.report/internal/units"
	"github.com/banshee-data/presence.report/internal/version"
	"github.com/banshee-data/presence.report/internal/vision"
	"github.com/banshee-data/presence.report/internal/vision/network"
)

var (
	devMode        = flag.Bool("dev", false, "Run in dev mode (mock camera, static assets from disk)")
	listen         = flag.String("listen", ":8080", "HTTP listen address")
	dbFile         = flag.String("db", "presence_data.db", "Path to the SQLite database file")
	source         = flag.String("source", "serial", "Detection source: serial, udp, replay or pcap")
	serialPort     = flag.String("serial-port", "/dev/ttyACM0", "Camera serial port (source=serial)")
	baudRate       = flag.Int("baud", 115200, "Camera serial baud rate (source=serial)")
	udpPort        = flag.Int("udp-port", 9944, "UDP port for detection frames (source=udp, source=pcap)")
	udpAddress     = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf         = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	replayFile     = flag.String("replay", "", "Detection frame log to replay (source=replay)")
	replayLoop     = flag.Bool("replay-loop", false, "Restart the replay log when it ends")
	replayRealtime = flag.Bool("replay-realtime", false, "Pace replay by recorded frame timestamps")
	pcapFile       = flag.String("pcap", "", "PCAP capture to replay (source=pcap)")
	tuningFile     = flag.String("tuning", "", "Tuning config JSON (default: "+config.DefaultConfigPath+" if present)")
	mqttBroker     = flag.String("mqtt-broker", "", "MQTT broker host:port (empty: MQTT sink disabled)")
	mqttPrefix     = flag.String("mqtt-topic-prefix", "presence", "MQTT topic prefix for occupancy events")
	logInterval    = flag.Int("log-interval", 60, "Ingest statistics logging interval in seconds")
	showVersion    = flag.Bool("version", false, "Print version information and exit")
)

// liveSnapshotInterval paces track snapshots to the live dashboard.
const liveSnapshotInterval = 250 * time.Millisecond

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// applyEnvConfig fills in settings from the environment for any flag not
// given on the command line. Explicit flags always win.
func applyEnvConfig() {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["listen"] {
		*listen = getEnv("PRESENCE_LISTEN", *listen)
	}
	if !set["db"] {
		*dbFile = getEnv("PRESENCE_DB", *dbFile)
	}
	if !set["source"] {
		*source = getEnv("PRESENCE_SOURCE", *source)
	}
	if !set["serial-port"] {
		*serialPort = getEnv("SERIAL_PORT", *serialPort)
	}
	if !set["udp-port"] {
		*udpPort = getEnvAsInt("UDP_PORT", *udpPort)
	}
	if !set["mqtt-broker"] {
		*mqttBroker = getEnv("MQTT_BROKER", *mqttBroker)
	}
	if !set["mqtt-topic-prefix"] {
		*mqttPrefix = getEnv("MQTT_TOPIC_PREFIX", *mqttPrefix)
	}
}

// loadTuning resolves the tuning configuration: an explicit -tuning path
// must load cleanly, the canonical defaults file is used when present, and
// otherwise every knob falls back to its built-in default.
func loadTuning(path string) *config.TuningConfig {
	if path != "" {
		cfg, err := config.LoadTuningConfig(path)
		if err != nil {
			log.Fatalf("Failed to load tuning config %s: %v", path, err)
		}
		log.Printf("Loaded tuning config from %s", path)
		return cfg
	}

	if cfg, err := config.LoadTuningConfig(config.DefaultConfigPath); err == nil {
		return cfg
	}
	return config.EmptyTuningConfig()
}

// sendThreshold forwards a detector threshold override from the
// environment to the camera. Invalid values are logged and skipped.
func sendThreshold(m serialmux.SerialMuxInterface, env, prefix string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	cmd := prefix + v
	if !camera.IsValidThresholdCommand(cmd) {
		log.Printf("Ignoring invalid %s value %q", env, v)
		return
	}
	if err := m.SendCommand(cmd); err != nil {
		log.Printf("Failed to send %s: %v", cmd, err)
	}
}

func applyCameraThresholds(m serialmux.SerialMuxInterface) {
	sendThreshold(m, "CONF_THRESHOLD", "T=")
	sendThreshold(m, "IOU_THRESHOLD", "U=")
}

// dbSink adapts the event store to the pipeline's sink interface, pinning
// every occupancy change to the session created at startup.
type dbSink struct {
	db        *db.DB
	sessionID string
}

func (s *dbSink) WriteCountEvent(ev vision.CountEvent) error {
	return s.db.RecordCountEvent(s.sessionID, ev.Count, ev.Timestamp)
}

// newPipelineWorker builds the counting pipeline from resolved tuning
// values.
func newPipelineWorker(sessionID string, tuning *config.TuningConfig, skip int) *vision.Worker {
	return vision.NewWorker(vision.WorkerConfig{
		SessionID: sessionID,
		Tracker: vision.TrackerConfig{
			MaxMatchDistance: tuning.GetMaxMatchDistance(),
			MaxDisappeared:   tuning.GetMaxDisappeared(),
		},
		Decode: vision.DecodeOptions{
			Frame: units.FrameSize{
				Width:  tuning.GetFrameWidth(),
				Height: tuning.GetFrameHeight(),
			},
			NormalizedBoxes: tuning.GetNormalizedBoxes(),
			MinConfidence:   tuning.GetMinConfidence(),
		},
		Skip:            skip,
		StaleSeenFrames: tuning.GetStaleSeenFrames(),
		QueueSize:       tuning.GetQueueSize(),
		StatsInterval:   tuning.GetStatsInterval(),
	}, nil)
}

// Main
func main() {
	// A local .env is developer convenience; production units configure the
	// environment through systemd.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment overrides from .env")
	}

	flag.Parse()
	applyEnvConfig()

	if *showVersion {
		fmt.Printf("presence-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// `presence-report migrate <action>` manages the schema and exits.
	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := loadTuning(*tuningFile)
	skip := getEnvAsInt("SKIP_FRAMES", tuning.GetSkipFrames())

	// Fresh installs start at the latest schema without prompting; an
	// existing database that is behind gets the explicit migration prompt
	// so the operator decides when its data is touched.
	freshInstall := false
	if _, err := os.Stat(*dbFile); os.IsNotExist(err) {
		freshInstall = true
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	migrationsFS, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}
	if freshInstall {
		if err := database.MigrateUp(migrationsFS); err != nil {
			log.Fatalf("Failed to initialise database schema: %v", err)
		}
	} else if needsExit, err := database.CheckAndPromptMigrations(migrationsFS); needsExit {
		log.Fatalf("Database schema check: %v", err)
	} else if err != nil {
		log.Fatalf("Failed to check database schema: %v", err)
	}

	session, err := database.CreateSession(*source)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	log.Printf("Session %s started (source=%s, skip=%d)", session.ID, *source, skip)

	worker := newPipelineWorker(session.ID, tuning, skip)
	worker.AddSink("db", &dbSink{db: database, sessionID: session.ID})

	hub := api.NewHub()
	worker.AddSink("live", hub)

	if *mqttBroker != "" {
		publisher := emitter.NewMQTTPublisher(emitter.Config{
			Broker:      *mqttBroker,
			TopicPrefix: *mqttPrefix,
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
		})
		if err := publisher.Connect(); err != nil {
			// The client retries in the background; events flow once the
			// broker comes up.
			log.Printf("MQTT connect: %v", err)
		}
		defer publisher.Close()
		worker.AddSink("mqtt", publisher)
	}

	// Create a wait group for the HTTP server, the ingest source, and the
	// pipeline worker routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The command endpoint and admin routes always need a serial mux;
	// sources other than serial get one that reports the camera link as
	// disabled.
	var m serialmux.SerialMuxInterface = serialmux.NewDisabledSerialMux()

	switch *source {
	case "serial":
		if *devMode {
			port, err := serialmux.NewMockSerialPort()
			if err != nil {
				log.Fatalf("Failed to create mock camera: %v", err)
			}
			m = serialmux.NewSerialMux(port)
		} else {
			real, err := serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *baudRate})
			if err != nil {
				log.Fatalf("Failed to open camera serial port %s: %v", *serialPort, err)
			}
			m = real
		}

		if err := m.Initialize(); err != nil {
			log.Fatalf("Failed to initialize camera: %v", err)
		}
		applyCameraThresholds(m)

		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		// subscribe to the serial port lines and route them: detection
		// frames to the pipeline, status responses to the camera state
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, c := m.Subscribe()
			defer m.Unsubscribe(id)
			for {
				select {
				case line := <-c:
					if err := camera.HandleLine(worker, line); err != nil {
						log.Printf("error handling camera line: %v", err)
					}
				case <-ctx.Done():
					log.Printf("subscribe routine terminated")
					return
				}
			}
		}()

	case "udp":
		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:     fmt.Sprintf("%s:%d", *udpAddress, *udpPort),
			RcvBuf:      *rcvBuf,
			LogInterval: time.Duration(*logInterval) * time.Second,
			Stats:       network.NewPacketStats(),
			Pipeline:    worker,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener routine terminated")
		}()

	case "replay":
		if *replayFile == "" {
			log.Fatal("source=replay requires -replay <frame log>")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := network.ReadFrameLog(ctx, network.ReplayConfig{
				Path:     *replayFile,
				Loop:     *replayLoop,
				Realtime: *replayRealtime,
				Pipeline: worker,
			})
			if err != nil && err != context.Canceled {
				log.Printf("Replay error: %v", err)
			}
			log.Print("replay routine terminated")
		}()

	case "pcap":
		if *pcapFile == "" {
			log.Fatal("source=pcap requires -pcap <capture file>")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := network.ReadPCAPFile(ctx, *pcapFile, *udpPort, worker, network.NewPacketStats())
			if err != nil && err != context.Canceled {
				log.Printf("PCAP replay error: %v", err)
			}
			log.Print("pcap routine terminated")
		}()

	default:
		log.Fatalf("Unknown source %q (want serial, udp, replay or pcap)", *source)
	}
	defer m.Close()

	// run the pipeline worker: scheduler, decode, tracker, presence
	// monitor, event fan-out
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := worker.Run(ctx); err != nil {
			log.Printf("pipeline worker error: %v", err)
		}
	}()

	// run the live feed hub and the periodic snapshot stream for it
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	server := api.NewServer(m, database, worker, tuning, hub, *devMode)

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.StreamSnapshots(ctx, liveSnapshotInterval)
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()

		// mount the admin debugging routes (accessible only in dev mode or
		// over Tailscale)
		database.AttachAdminRoutes(mux)
		m.AttachAdminRoutes(mux)

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
