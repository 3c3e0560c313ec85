// VRLink Core - VR Device Relay Service
//
// This is the main entry point for the VRLink Core application.
// VRLink keeps persistent WebSocket connections to VR headsets and
// relays commands to them on behalf of a chat-bot control plane:
//   - One-time pairing codes bind users to devices
//   - Fire-and-forget message delivery to a linked device
//   - Request/reply exchanges (installed-app library) with timeouts
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/vrlink/vrlink-core/migrations"

	"github.com/vrlink/vrlink-core/internal/api"
	"github.com/vrlink/vrlink-core/internal/infrastructure/config"
	"github.com/vrlink/vrlink-core/internal/infrastructure/database"
	"github.com/vrlink/vrlink-core/internal/infrastructure/influxdb"
	"github.com/vrlink/vrlink-core/internal/infrastructure/logging"
	"github.com/vrlink/vrlink-core/internal/infrastructure/mqtt"
	"github.com/vrlink/vrlink-core/internal/link"
	"github.com/vrlink/vrlink-core/internal/relay"
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

// eventLookupTimeout bounds the storage lookup done while enriching a
// lifecycle event with the linked user.
const eventLookupTimeout = 2 * time.Second

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VRLink Core",
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

	// Core relay state
	links := link.NewSQLiteRepository(db.DB)
	registry := relay.NewRegistry()
	registry.SetLogger(log)
	pending := relay.NewPendingTable()
	pending.SetLogger(log)

	service := relay.NewService(links, registry, pending, cfg.Relay.GetRequestTimeout())
	service.SetLogger(log)

	relayServer := relay.NewServer(cfg.Relay, links, registry, pending)
	relayServer.SetLogger(log)

	// Connect to MQTT broker (optional lifecycle event publisher)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		events := &eventPublisher{client: mqttClient, links: links, log: log}
		relayServer.SetEvents(events)
		service.SetEvents(events)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry sink)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		relayServer.SetMetrics(influxClient)
		service.SetMetrics(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the device-facing relay server
	if startErr := relayServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting relay server: %w", startErr)
	}
	defer func() {
		log.Info("stopping relay server")
		if closeErr := relayServer.Close(); closeErr != nil {
			log.Error("error closing relay server", "error", closeErr)
		}
	}()
	log.Info("relay server listening",
		"host", cfg.Relay.Host,
		"port", cfg.Relay.Port,
	)

	// Start the command-surface HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Service:  service,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server listening",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Relay server (closes device sockets)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("VRLink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VRLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VRLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// eventPublisher forwards device lifecycle events to the MQTT broker.
// Publish failures are logged and dropped; lifecycle events are
// best-effort and must never block the relay path.
type eventPublisher struct {
	client *mqtt.Client
	links  link.Repository
	log    *logging.Logger
}

func (p *eventPublisher) DeviceConnected(deviceID, deviceName string) {
	p.publish(mqtt.EventConnected, deviceID, p.userFor(deviceID), deviceName)
}

func (p *eventPublisher) DeviceDisconnected(deviceID string) {
	p.publish(mqtt.EventDisconnected, deviceID, p.userFor(deviceID), "")
}

func (p *eventPublisher) DevicePaired(userID, deviceID string) {
	p.publish(mqtt.EventPaired, deviceID, userID, "")
}

func (p *eventPublisher) DeviceUnlinked(userID, deviceID string) {
	p.publish(mqtt.EventUnlinked, deviceID, userID, "")
}

func (p *eventPublisher) publish(event, deviceID, userID, deviceName string) {
	if err := p.client.PublishDeviceEvent(event, deviceID, userID, deviceName); err != nil {
		p.log.Warn("publishing lifecycle event",
			"event", event,
			"device_id", deviceID,
			"error", err,
		)
	}
}

// userFor resolves the user currently linked to a device, if any.
func (p *eventPublisher) userFor(deviceID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), eventLookupTimeout)
	defer cancel()

	userID, err := p.links.UserIDByDevice(ctx, deviceID)
	if err != nil {
		return ""
	}
	return userID
}
