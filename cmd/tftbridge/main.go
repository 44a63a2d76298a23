// tftbridge relays line-oriented serial traffic between a printer's TFT
// display controller and the printer firmware host.
//
// The relay runs only while the host reports itself ready. Ready and
// disconnect signals arrive over MQTT, through the operator HTTP API, or
// once at startup when host.auto_ready is set.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/tftbridge/migrations"

	"github.com/nerrad567/tftbridge/internal/api"
	"github.com/nerrad567/tftbridge/internal/bridge"
	"github.com/nerrad567/tftbridge/internal/host"
	"github.com/nerrad567/tftbridge/internal/infrastructure/config"
	"github.com/nerrad567/tftbridge/internal/infrastructure/database"
	"github.com/nerrad567/tftbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/tftbridge/internal/infrastructure/logging"
	"github.com/nerrad567/tftbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/tftbridge/internal/journal"
	"github.com/nerrad567/tftbridge/internal/serial"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default config path when --config is not given.
const configEnv = "TFTBRIDGE_CONFIG"

// eventQueueSize bounds each broker-backed event sink.
const eventQueueSize = 128

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("tftbridge", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "path to config.yaml (env "+configEnv+")")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")
	rollback := flags.Bool("migrate-down", false, "roll back the latest journal migration and exit")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if *showVersion {
		fmt.Printf("tftbridge %s (%s, %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting tftbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if *rollback {
		return migrateDown(ctx, cfg.Database, log)
	}

	opener, err := serial.NewOpener(cfg.Bridge.Driver)
	if err != nil {
		return fmt.Errorf("selecting serial driver: %w", err)
	}

	var sinks bridge.Sinks

	// Journal (optional)
	var db *database.DB
	var repo journal.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
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

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		applied, _, statusErr := db.GetMigrationStatus(ctx)
		if statusErr != nil {
			return fmt.Errorf("reading migration status: %w", statusErr)
		}
		log.Info("database migrations complete",
			"applied", len(applied),
			"schema_version", schemaVersion(applied),
		)

		repo = journal.NewSQLiteRepository(db.DB)
		writer := journal.NewWriter(repo, journal.WriterConfig{Retain: cfg.Database.RetainEvents})
		writer.SetLogger(log.With("component", "journal"))
		writer.Start()
		defer func() {
			writer.Stop()
			if dropped := writer.Dropped(); dropped > 0 {
				log.Warn("journal dropped events", "count", dropped)
			}
		}()
		sinks = append(sinks, writer)
	} else {
		log.Info("event journal disabled")
	}

	// MQTT (optional). The Will marks the bridge offline if the process dies.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		lwt, marshalErr := json.Marshal(bridge.NewLWTMessage(cfg.Bridge.ID))
		if marshalErr != nil {
			return fmt.Errorf("encoding last will: %w", marshalErr)
		}
		mqttClient, err = mqtt.Connect(cfg.MQTT, &mqtt.Will{
			Topic:   bridge.HealthTopic(cfg.Bridge.ID),
			Payload: lwt,
		})
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		eventTopic := mqtt.Topics{}.BridgeEvents(cfg.Bridge.ID)
		events := bridge.NewQueuedSink(bridge.EventSinkFunc(func(e bridge.Event) {
			if pubErr := mqttClient.PublishJSON(eventTopic, e, false); pubErr != nil {
				log.Debug("event not published", "kind", e.Kind, "error", pubErr)
			}
		}), eventQueueSize)
		defer events.Close()
		sinks = append(sinks, events)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// The hub exists before the bridge so the tap can feed it.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	go hub.Run(hubCtx)
	sinks = append(sinks, hub)

	// The health reporter needs the bridge as its source, so its sink is
	// bound after construction.
	var health *bridge.HealthReporter
	healthEvents := bridge.NewQueuedSink(bridge.EventSinkFunc(func(e bridge.Event) {
		if health != nil {
			health.HandleEvent(e)
		}
	}), eventQueueSize)
	defer healthEvents.Close()
	sinks = append(sinks, healthEvents)

	var tap bridge.RecordTap
	if cfg.Bridge.Tap {
		tap = hub.Tap()
	}

	b, err := bridge.New(bridge.Options{
		ID:           cfg.Bridge.ID,
		TFT:          endpoint(bridge.EndpointTFT, cfg.Bridge.TFT),
		Firmware:     endpoint(bridge.EndpointFirmware, cfg.Bridge.Firmware),
		Opener:       opener,
		PollInterval: cfg.GetPollInterval(),
		Logger:       log.With("component", "bridge"),
		Events:       sinks,
		Tap:          tap,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.GetDrainTimeout())
		defer cancel()
		log.Info("stopping bridge")
		if stopErr := b.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping bridge", "error", stopErr)
		}
	}()

	healthCfg := bridge.HealthReporterConfig{
		BridgeID:    cfg.Bridge.ID,
		Version:     version,
		Interval:    cfg.GetHealthInterval(),
		Source:      b,
		Broadcaster: hub,
	}
	if mqttClient != nil {
		healthCfg.Publisher = mqttClient
	}
	if influxClient != nil {
		healthCfg.Metrics = influxClient
	}
	reporter := bridge.NewHealthReporter(healthCfg)
	reporter.SetLogger(log.With("component", "health"))
	if pubErr := reporter.PublishStarting(); pubErr != nil {
		log.Warn("failed to publish starting status", "error", pubErr)
	}
	health = reporter
	reporter.Start(ctx)
	defer reporter.Stop()

	// Host lifecycle over MQTT
	if mqttClient != nil {
		listener := host.NewListener(host.Config{
			Topic:              cfg.Host.StateTopic,
			ReadyPayloads:      cfg.Host.ReadyPayloads,
			DisconnectPayloads: cfg.Host.DisconnectPayloads,
			ReadyTimeout:       cfg.GetDrainTimeout(),
		}, b)
		listener.SetLogger(log.With("component", "host"))
		if subErr := listener.Start(mqttClient); subErr != nil {
			return fmt.Errorf("subscribing to host state: %w", subErr)
		}
		log.Info("listening for host state", "topic", cfg.Host.StateTopic)
	}

	// Operator API (optional)
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Logger:       log.With("component", "api"),
			Bridge:       b,
			Journal:      repo,
			Hub:          hub,
			ReadyTimeout: cfg.GetDrainTimeout(),
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server listening", "addr", srv.Addr())
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Host.AutoReady {
		readyCtx, cancel := context.WithTimeout(ctx, cfg.GetDrainTimeout())
		readyErr := b.Ready(readyCtx)
		cancel()
		if readyErr != nil && !errors.Is(readyErr, context.Canceled) {
			return fmt.Errorf("auto ready: %w", readyErr)
		}
		log.Info("auto ready issued")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, health, bridge, sinks, hub,
	// InfluxDB, MQTT, journal, database.

	log.Info("tftbridge stopped")
	return nil
}

// getConfigPath prefers the --config flag, then TFTBRIDGE_CONFIG, then the
// default path.
// migrateDown rolls back the most recent journal migration.
func migrateDown(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) error {
	if !cfg.Enabled {
		return errors.New("migrate-down: database is disabled")
	}
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best-effort close on a one-shot path

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("migration rolled back", "schema_version", schemaVersion(applied))
	return nil
}

// schemaVersion returns the newest applied version, or "none".
func schemaVersion(applied []database.MigrationRecord) string {
	if len(applied) == 0 {
		return "none"
	}
	return applied[len(applied)-1].Version
}

func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// endpoint converts a config section to a serial endpoint.
func endpoint(name string, ec config.EndpointConfig) serial.Endpoint {
	return serial.Endpoint{
		Name:    name,
		Path:    ec.Device,
		Baud:    ec.Baud,
		Timeout: time.Duration(ec.Timeout) * time.Second,
	}
}

// healthCheck verifies the enabled infrastructure connections.
// Any argument may be nil when its component is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
