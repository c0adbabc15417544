// mqttscope - MQTT traffic inspection service
//
// This is the main entry point for the mqttscope service. mqttscope connects
// to an MQTT v5 broker, subscribes to the full topic space, and keeps a
// bounded in-memory window of recent traffic per topic:
//   - Byte-budgeted per-topic ring buffers with oldest-first eviction
//   - Wildcard rules assigning budgets to whole topic families
//   - Batched delivery of new messages to observers
//   - Operational HTTP endpoints for health, stats, and Prometheus metrics
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/mqttscope/internal/engine"
	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
	"github.com/nerrad567/mqttscope/internal/infrastructure/logging"
	"github.com/nerrad567/mqttscope/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttscope/internal/observability"
	"github.com/nerrad567/mqttscope/internal/ops"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mqttscope",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Prometheus registry shared by the pipeline and the ops server
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Broker connection manager
	manager := mqtt.NewManager(cfg.Broker)
	manager.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("closing broker connection")
		manager.Close()
	}()

	// Ingestion engine
	eng, err := engine.New(engine.Deps{
		Conn:     manager,
		Logger:   log,
		Metrics:  metrics,
		Settings: cfg.Settings(),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	// Headless observer wiring. A UI front-end would subscribe to these
	// events instead; the daemon bridges them into the log.
	eng.SetOnBatch(func(b engine.Batch) {
		log.Debug("batch delivered", "messages", len(b.Messages))
	})
	eng.SetOnStateChange(func(sc mqtt.StateChange) {
		if sc.UserMessage != "" {
			log.Warn("connection state changed",
				"state", sc.State.String(),
				"status", sc.Status,
				"user_message", sc.UserMessage,
			)
			return
		}
		log.Info("connection state changed", "state", sc.State.String(), "status", sc.Status)
	})
	eng.SetOnLog(func(line string) {
		log.Debug("connection event", "message", line)
	})

	eng.Start()
	defer func() {
		log.Info("stopping engine")
		eng.Close()
	}()

	// Ops server (optional)
	if cfg.Ops.Enabled {
		opsServer, opsErr := ops.New(ops.Deps{
			Config:   cfg.Ops,
			Logger:   log,
			Pipeline: eng,
			Broker:   manager,
			Registry: registry,
			Version:  version,
		})
		if opsErr != nil {
			return fmt.Errorf("creating ops server: %w", opsErr)
		}
		if startErr := opsServer.Start(); startErr != nil {
			return fmt.Errorf("starting ops server: %w", startErr)
		}
		defer func() {
			log.Info("stopping ops server")
			if closeErr := opsServer.Close(); closeErr != nil {
				log.Error("error closing ops server", "error", closeErr)
			}
		}()
		log.Info("ops server started", "address", fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port))
	} else {
		log.Info("ops server disabled")
	}

	// Kick off the broker connection. Failures surface through the state
	// change observer; the process keeps running either way so the operator
	// can fix the broker and reconnect.
	eng.Connect()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Ops server (if enabled)
	// 2. Engine
	// 3. Broker connection

	return nil
}

// getConfigPath returns the configuration file path.
// Uses MQTTSCOPE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MQTTSCOPE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
