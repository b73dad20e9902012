// APS Core - Factory Message Orchestration
//
// This is the main entry point for the APS Core application. It sits
// between the factory's MQTT broker and operator tooling:
//   - Keeps the topic template registry and validates broker traffic
//   - Builds and dispatches order and module command payloads
//   - Tracks order lifecycles from request to completion
//   - Captures a rolling message trace for structural analysis
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/apsfactory/aps-core/migrations"

	"github.com/apsfactory/aps-core/internal/analyzer"
	"github.com/apsfactory/aps-core/internal/api"
	"github.com/apsfactory/aps-core/internal/builder"
	"github.com/apsfactory/aps-core/internal/dispatch"
	"github.com/apsfactory/aps-core/internal/infrastructure/config"
	"github.com/apsfactory/aps-core/internal/infrastructure/database"
	"github.com/apsfactory/aps-core/internal/infrastructure/influxdb"
	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
	"github.com/apsfactory/aps-core/internal/infrastructure/mqtt"
	"github.com/apsfactory/aps-core/internal/intake"
	"github.com/apsfactory/aps-core/internal/order"
	"github.com/apsfactory/aps-core/internal/sequencer"
	"github.com/apsfactory/aps-core/internal/template"
	"github.com/apsfactory/aps-core/internal/trace"
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

// traceTopicCap is how many messages the trace keeps per topic.
const traceTopicCap = 500

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
func run(ctx context.Context) error { //nolint:gocognit // Linear start-up wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting APS Core",
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

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Load the template registry from its source document
	registry := template.NewRegistry(log)
	doc, err := template.LoadSource(cfg.Templates.Path)
	if err != nil {
		return fmt.Errorf("loading template source: %w", err)
	}
	if loadErr := registry.Load(doc); loadErr != nil {
		return fmt.Errorf("loading templates: %w", loadErr)
	}
	log.Info("template registry loaded",
		"path", cfg.Templates.Path,
		"templates", len(registry.List()),
	)

	validator := template.NewValidator(registry, cfg.Validation.Strict)
	payloadBuilder := builder.New(registry, validator)

	// Restore per-module sequence counters
	seq := sequencer.New(sequencer.NewSQLiteRepository(db.DB), log)
	if restoreErr := seq.Restore(ctx); restoreErr != nil {
		return fmt.Errorf("restoring sequence counters: %w", restoreErr)
	}

	// Order tracking
	orderRepo := order.NewSQLiteRepository(db.DB)
	tracker := order.NewTracker(order.Config{
		PendingTimeout:  cfg.PendingTimeout(),
		LifetimeTimeout: cfg.LifetimeTimeout(),
		CompletedStates: cfg.Orders.CompletedStates,
		ErrorStates:     cfg.Orders.ErrorStates,
	}, log)
	go tracker.Run(ctx)

	// Rolling broker trace
	traceStore := trace.NewStore(db.DB, traceTopicCap, log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(discErr error) {
		log.Warn("MQTT disconnected", "error", discErr)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub is created up front so order and intake events can
	// be broadcast from outside the API server.
	hub := api.NewHub(cfg.API.WebSocket, log)
	go hub.Run(ctx)

	// Order transitions: broadcast to clients, persist terminal records,
	// record telemetry.
	tracker.SetOnTransition(func(o order.Order) {
		hub.Broadcast(api.ChannelOrderTransition, o)
		if o.Status.Terminal() {
			if saveErr := orderRepo.Save(context.Background(), o); saveErr != nil {
				log.Error("persisting order failed", "order_id", o.ID, "error", saveErr)
			}
			if influxClient != nil {
				influxClient.WriteOrderEvent(o.ID, string(o.Status), o.Color, o.OrderType,
					o.EndTime.Sub(o.StartTime).Seconds())
			}
		}
	})

	// Intake pipeline: classify, validate, route to the tracker, then
	// fan out to the trace, telemetry and WebSocket clients.
	router := intake.NewRouter(registry, validator, tracker, log)
	router.Subscribe(func(ev intake.Event) {
		if addErr := traceStore.Add(context.Background(), ev.Topic, ev.Raw, ev.ReceivedAt); addErr != nil {
			log.Warn("trace capture failed", "topic", ev.Topic, "error", addErr)
		}
		if influxClient != nil {
			influxClient.WriteIntakeEvent(string(ev.Category), string(ev.SubCategory), ev.Serial)
		}
		hub.Broadcast(api.ChannelIntakeMessage, ev)
	})

	if subErr := subscribeIntake(mqttClient, router, byte(cfg.MQTT.QoS)); subErr != nil {
		return fmt.Errorf("subscribing to broker topics: %w", subErr)
	}
	log.Info("broker subscriptions established", "count", mqttClient.SubscriptionCount())

	// Outbound dispatch
	dispatcher := dispatch.New(payloadBuilder, seq, tracker, mqttClient, log)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:        cfg.API,
		Logger:        log,
		Registry:      registry,
		Validator:     validator,
		Tracker:       tracker,
		Dispatcher:    dispatcher,
		Sequencer:     seq,
		Intake:        router,
		Trace:         traceStore,
		Analyzer:      analyzer.New(log),
		TemplatesPath: cfg.Templates.Path,
		ExternalHub:   hub,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Flush every in-memory order record so a restart can answer
	// history queries about this run.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if flushErr := orderRepo.SaveAll(flushCtx, tracker.All()); flushErr != nil {
		log.Error("flushing order records failed", "error", flushErr)
	}

	log.Info("APS Core stopped")
	return nil
}

// subscribeIntake points every relevant broker pattern at the intake router.
func subscribeIntake(client *mqtt.Client, router *intake.Router, qos byte) error {
	topics := mqtt.Topics{}
	patterns := []string{
		topics.AllCCUOrders(),
		topics.AllModuleStates(),
		topics.AllModuleConnections(),
		topics.AllModuleFactsheets(),
		topics.AllTransportStates(),
	}
	for _, pattern := range patterns {
		if err := client.Subscribe(pattern, qos, router.Handle); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses APSCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("APSCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
