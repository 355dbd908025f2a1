// c4bridge exposes Control4 lights and thermostats as smart-home accessories.
//
// It discovers devices over the controller's HTTP variable API, keeps a
// cached view of their state through polling and mirrors that state to
// HomeKit, Home Assistant (over MQTT) and a REST/WebSocket API.
//
// Usage:
//
//	c4bridge                 run the bridge
//	c4bridge token [subject] print an API bearer token and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nerrad567/c4-bridge/migrations"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/api"
	"github.com/nerrad567/c4-bridge/internal/audit"
	"github.com/nerrad567/c4-bridge/internal/bridge"
	"github.com/nerrad567/c4-bridge/internal/controller"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/hass"
	"github.com/nerrad567/c4-bridge/internal/homekit"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/config"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/database"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "C4BRIDGE_CONFIG"

	defaultTokenSubject = "admin"
	defaultTokenTTL     = 30 * 24 * time.Hour

	// refreshTimeout bounds the background read-back after a write.
	refreshTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = runToken(os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every enabled subsystem and blocks until ctx is cancelled.
// Deferred closes run in reverse start order on the way out.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting c4bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	ctrl, err := controller.New(controller.Config{
		BaseURL: cfg.Controller.BaseURL,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating controller client: %w", err)
	}

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
	} else {
		log.Info("InfluxDB disabled")
	}

	br, err := bridge.New(bridge.Options{
		Controller: ctrl,
		Catalog: device.DefaultCatalog(device.ThermostatOptions{
			CurrentStateVariable: cfg.Controller.CurrentStateVariable,
		}),
		Repository:      accessory.NewSQLiteRepository(db.DB),
		PollInterval:    cfg.PollInterval(),
		PollConcurrency: cfg.Controller.PollConcurrency,
		RefreshTimeout:  refreshTimeout,
		Logger:          log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if influxClient != nil {
		br.Subscribe(recordHistory(influxClient, log.Component("history")))
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	journal := audit.NewRecorder(auditRepo, log.Component("audit"))
	journal.Start(ctx)
	defer journal.Stop()
	br.Subscribe(journal.HandleEvent)

	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	stopBridge := sync.OnceFunc(func() {
		log.Info("stopping bridge")
		br.Stop()
	})
	defer stopBridge()
	log.Info("bridge started",
		"controller", cfg.Controller.BaseURL,
		"accessories", len(br.Accessories()),
		"poll_interval", cfg.PollInterval(),
	)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var pub *hass.Publisher
		mqttClient, pub, err = startMQTT(cfg, br, log)
		if err != nil {
			return err
		}
		defer stopMQTT(stopBridge, pub, mqttClient, log)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.HomeKit.Enabled {
		if hkErr := startHomeKit(ctx, cfg, br, log); hkErr != nil {
			return hkErr
		}
	} else {
		log.Info("HomeKit disabled")
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Bridge:   br,
			Audit:    auditRepo,
			Version:  version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		apiServer, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startMQTT connects to the broker and mirrors accessories to Home Assistant.
func startMQTT(cfg *config.Config, br *bridge.Bridge, log *logging.Logger) (*mqtt.Client, *hass.Publisher, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	pub, err := hass.NewPublisher(hass.Options{
		Client: client,
		Source: br,
		Topics: client.Topics(),
		QoS:    client.QoS(),
		Logger: log.Component("hass"),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating Home Assistant publisher: %w", err)
	}
	br.Subscribe(pub.HandleEvent)
	if err := pub.Start(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("starting Home Assistant publisher: %w", err)
	}

	log.Info("MQTT bridge started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"discovery_prefix", cfg.MQTT.DiscoveryPrefix,
	)
	return client, pub, nil
}

// startHomeKit publishes the current accessories as a HAP bridge. Accessories
// discovered later are picked up on the next restart.
func startHomeKit(ctx context.Context, cfg *config.Config, br *bridge.Bridge, log *logging.Logger) error {
	hk, err := homekit.New(cfg.HomeKit, br.Accessories(), log.Component("homekit"))
	if errors.Is(err, homekit.ErrNoAccessories) {
		log.Warn("HomeKit enabled but no accessories to publish")
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating HomeKit server: %w", err)
	}
	br.Subscribe(hk.HandleEvent)

	go func() {
		if err := hk.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			log.Error("HomeKit server stopped", "error", err)
		}
	}()
	log.Info("HomeKit server started",
		"name", cfg.HomeKit.BridgeName,
		"port", cfg.HomeKit.Port,
		"accessories", len(hk.Accessories()),
	)
	return nil
}

// recordHistory returns a listener that writes every property change to
// InfluxDB.
func recordHistory(client *influxdb.Client, log *logging.Logger) accessory.Listener {
	return func(_ context.Context, ev accessory.Event) {
		acc := ev.Accessory
		err := client.WriteProperty(influxdb.PropertySample{
			UUID:      acc.UUID,
			Accessory: acc.Context.Name,
			Room:      acc.Context.Room,
			Property:  ev.Property,
			Source:    string(ev.Source),
			Value:     ev.Value,
			At:        ev.At,
		})
		if err != nil && !errors.Is(err, influxdb.ErrNotConnected) {
			log.Warn("recording property failed",
				"accessory", acc.DisplayName(),
				"property", ev.Property,
				"error", err,
			)
		}
	}
}

// runToken prints a bearer token for the API signed with the configured
// secret.
func runToken(args []string, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	subject := defaultTokenSubject
	if len(args) > 0 && args[0] != "" {
		subject = args[0]
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, defaultTokenTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// stopMQTT tears down the Home Assistant surface. The bridge is stopped
// first so no poll cycle publishes to a closed client.
func stopMQTT(stopBridge func(), pub interface{ Stop() }, client interface{ Close() error }, log *logging.Logger) {
	stopBridge()
	pub.Stop()
	log.Info("disconnecting from MQTT")
	if err := client.Close(); err != nil {
		log.Error("error closing MQTT", "error", err)
	}
}

// getConfigPath returns C4BRIDGE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the database and any enabled outbound connections.
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
