// SberGate - Home Assistant to SberDevices MQTT gateway
//
// This is the main entry point for the SberGate agent. It bridges a
// Home Assistant hub to the SberDevices cloud:
//   - hub entities are mirrored into a flat-file device registry
//   - cloud commands arrive over MQTT and are forwarded as hub service calls
//   - hub state changes flow back to the cloud as status payloads
//
// An admin HTTP server exposes the registry for the bundled web UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/sbergate/internal/api"
	"github.com/nerrad567/sbergate/internal/cloud"
	"github.com/nerrad567/sbergate/internal/device"
	"github.com/nerrad567/sbergate/internal/hub"
	"github.com/nerrad567/sbergate/internal/infrastructure/config"
	"github.com/nerrad567/sbergate/internal/infrastructure/logging"
	"github.com/nerrad567/sbergate/internal/infrastructure/mqtt"
	"github.com/nerrad567/sbergate/internal/infrastructure/telemetry"
	"github.com/nerrad567/sbergate/internal/schema"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=2.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "2.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// endpointPollInterval is how often the startup sequence re-checks the
// options store for the cloud API endpoint pushed via the global config
// topic.
const endpointPollInterval = time.Second

// cloudRequestTimeout bounds schema bootstrap requests to the cloud API.
const cloudRequestTimeout = 10 * time.Second

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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SberGate",
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

	// Load the runtime options store (cloud endpoint discovered via MQTT)
	options, err := config.LoadOptions(cfg.Storage.OptionsFile)
	if err != nil {
		return fmt.Errorf("loading options: %w", err)
	}
	if cfg.Cloud.HTTPAPIEndpoint != "" {
		// Static config override beats whatever was discovered earlier.
		if _, setErr := options.Set(config.OptionCloudEndpoint, cfg.Cloud.HTTPAPIEndpoint); setErr != nil {
			return fmt.Errorf("applying endpoint override: %w", setErr)
		}
	}

	// Initialise device registry from the flat-file snapshot
	registry := device.NewRegistry(device.NewFileStore(cfg.Storage.DevicesFile), version)
	registry.SetLogger(log)
	if loadErr := registry.Load(); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry loaded", "devices", registry.Count())
	defer func() {
		log.Info("saving device registry")
		if saveErr := registry.Save(); saveErr != nil {
			log.Error("error saving device registry", "error", saveErr)
		}
	}()

	tracker := device.NewSyncTracker()

	// Serializer starts schemaless; the category schema is installed once
	// the cloud endpoint is known.
	serializer := cloud.NewSerializer(registry, nil, version)
	serializer.SetLogger(log)

	// Hub REST client doubles as the bridge's command dispatcher
	hubClient := hub.NewClient(cfg.Hub.APIURL, cfg.Hub.APIToken, cfg.Hub.CommandTimeout, registry)
	hubClient.SetLogger(log)

	updater := hub.NewUpdater(registry)
	updater.SetLogger(log)

	// Seed the registry from the hub's current entity states. A dead hub
	// is not fatal: the cloud side still serves cached state.
	if bootErr := updater.Bootstrap(ctx, hubClient); bootErr != nil {
		log.Warn("hub bootstrap failed, continuing with cached registry", "error", bootErr)
	} else {
		log.Info("hub entities bootstrapped", "devices", registry.Count())
	}

	// Connect to the vendor MQTT broker
	mqttClient, err := mqtt.Connect(cfg.Cloud.MQTT)
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
		"broker", fmt.Sprintf("%s:%d", cfg.Cloud.MQTT.Broker.Host, cfg.Cloud.MQTT.Broker.Port),
		"login", cfg.Cloud.MQTT.Auth.Login,
	)

	topics := mqtt.NewTopics(cfg.Cloud.MQTT.Auth.Login)

	// Cloud bridge: downlink command handling + uplink payload publishing
	bridge, err := cloud.NewBridge(cloud.BridgeOptions{
		Registry:       registry,
		Tracker:        tracker,
		Serializer:     serializer,
		MQTT:           mqttClient,
		Topics:         topics,
		QoS:            byte(cfg.Cloud.MQTT.QoS),
		Commander:      hubClient,
		Options:        options,
		EndpointOption: config.OptionCloudEndpoint,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating cloud bridge: %w", err)
	}
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting cloud bridge: %w", startErr)
	}
	log.Info("cloud bridge started", "downlink", topics.Downlink())

	// Hub event handler: echo suppression, debounce, fan-out
	events := hub.NewEventHandler(registry, tracker, updater, bridge)
	events.SetLogger(log)

	// Optional sensor telemetry sink
	sink, err := telemetry.Connect(cfg.Telemetry)
	switch {
	case err == nil:
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := sink.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		sink.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		events.SetTelemetry(sink)
		log.Info("telemetry connected", "url", cfg.Telemetry.URL, "bucket", cfg.Telemetry.Bucket)
	case errors.Is(err, telemetry.ErrDisabled):
		log.Info("telemetry disabled")
	default:
		return fmt.Errorf("connecting to telemetry: %w", err)
	}

	// Admin HTTP server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Cloud:     cfg.Cloud,
		Storage:   cfg.Storage,
		Logger:    log,
		Registry:  registry,
		Publisher: bridge,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating admin server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting admin server: %w", startErr)
	}
	defer func() {
		log.Info("stopping admin server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing admin server", "error", closeErr)
		}
	}()

	// Wait for the cloud to push its HTTP API endpoint, then bootstrap the
	// category schema and model list.
	log.Info("waiting for cloud API endpoint")
	endpoint := waitForEndpoint(ctx, options)
	if endpoint == "" {
		// Shutdown requested during the wait.
		return nil
	}
	log.Info("cloud API endpoint known", "endpoint", endpoint)

	cloudClient := schema.NewClient(endpoint,
		cfg.Cloud.MQTT.Auth.Login, cfg.Cloud.MQTT.Auth.Password, cloudRequestTimeout)

	sch, err := schema.Load(ctx, cfg.Storage.CategoriesFile, cloudClient, log)
	if err != nil {
		log.Error("schema bootstrap failed, payloads will carry no features", "error", err)
		server.SetStartupError(fmt.Sprintf("schema bootstrap failed: %v", err))
	} else {
		serializer.SetSchema(sch)
		server.SetSchema(sch, cloudClient)
		log.Info("category schema loaded", "categories", sch.Len())
	}
	if modelsErr := schema.EnsureModels(ctx, cfg.Storage.ModelsFile, cloudClient, log); modelsErr != nil {
		log.Warn("model list fetch failed", "error", modelsErr)
	}

	// Announce the device list and current states so the cloud is in sync
	// from the first moment, and again after every broker reconnect.
	bridge.PublishConfig()
	bridge.PublishStates(nil)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing device list and states")
		bridge.PublishConfig()
		bridge.PublishStates(nil)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Hub WebSocket event stream (reconnects forever)
	socket := hub.NewSocket(cfg.Hub.APIURL, cfg.Hub.APIToken, registry, events)
	socket.SetLogger(log)
	socket.SetReconnectDelay(cfg.Hub.ReconnectDelay)
	go socket.Run(ctx)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Admin server
	// 2. Telemetry (if enabled)
	// 3. MQTT
	// 4. Registry snapshot

	log.Info("SberGate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SBERGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SBERGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// waitForEndpoint blocks until the cloud API endpoint appears in the
// options store or the context is cancelled. Returns "" on cancellation.
func waitForEndpoint(ctx context.Context, options *config.Options) string {
	for {
		if endpoint := options.Get(config.OptionCloudEndpoint); endpoint != "" {
			return endpoint
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(endpointPollInterval):
		}
	}
}
