// Unify Core - Smart Home Device Unification Layer
//
// This is the main entry point for the Unify Core daemon. Unify presents
// devices from multiple vendor ecosystems (Zigbee, Philips Hue, and
// friends) behind one registry, one command vocabulary, and one API:
//   - Universal device ids ("<platform>:<local-id>") routed to adapters
//   - Fuzzy natural-language device resolution for voice frontends
//   - Retrying command execution with fault taxonomy and correlation ids
//   - TTL'd state cache with single-flight refresh de-duplication
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unify-home/unify-core/internal/adapters/hue"
	"github.com/unify-home/unify-core/internal/adapters/zigbee"
	"github.com/unify-home/unify-core/internal/api"
	"github.com/unify-home/unify-core/internal/command"
	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/infrastructure/config"
	"github.com/unify-home/unify-core/internal/infrastructure/logging"
	"github.com/unify-home/unify-core/internal/infrastructure/mqtt"
	"github.com/unify-home/unify-core/internal/infrastructure/telemetry"
	"github.com/unify-home/unify-core/internal/platform"
	"github.com/unify-home/unify-core/internal/statecache"
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

// statsFlushInterval is how often executor/cache statistics are exported
// to the telemetry store.
const statsFlushInterval = time.Minute

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
	log.Info("starting Unify Core",
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

	// Device registry with snapshot persistence
	devices := device.NewRegistry()
	devices.SetLogger(log.Component("registry"))
	devices.SetResolveThreshold(cfg.Registry.ResolveThreshold)

	if err := devices.LoadFile(cfg.Registry.SnapshotPath); err != nil {
		return fmt.Errorf("loading device snapshot: %w", err)
	}
	log.Info("device registry ready",
		"path", cfg.Registry.SnapshotPath,
		"devices", devices.Count(),
	)

	// Connect to MQTT broker (zigbee2mqtt transport + canonical state bus)
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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = telemetry.Connect(cfg.InfluxDB)
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

	// Platform registry and vendor adapters
	platforms := platform.NewRegistry(platform.DefaultOptions())
	platforms.SetLogger(log.Component("platforms"))
	defer func() {
		log.Info("closing platform adapters")
		if closeErr := platforms.Close(context.Background()); closeErr != nil {
			log.Error("error closing adapters", "error", closeErr)
		}
	}()

	if err := registerAdapters(ctx, cfg, platforms, mqttClient, log); err != nil {
		return fmt.Errorf("registering adapters: %w", err)
	}

	// Command executor with retry policy
	executor := command.NewExecutor(platforms, command.Config{
		Retries:     cfg.Executor.Retries,
		Timeout:     cfg.GetExecutorTimeout(),
		BackoffBase: cfg.GetBackoffBase(),
		Jitter:      cfg.Executor.Jitter,
	})
	executor.SetLogger(log.Component("executor"))
	if influxClient != nil {
		executor.SetRecorder(influxClient)
	}

	// State cache fed by adapter pushes, refreshed through the registry
	cache := statecache.New(platforms, statecache.Config{
		TTL:        cfg.GetCacheTTL(),
		MaxEntries: cfg.Cache.MaxEntries,
	})
	cache.SetLogger(log.Component("statecache"))

	// Adapter events keep the cache warm and mirror onto the canonical
	// MQTT surface for external consumers.
	eventSub := platforms.Subscribe(func(e platform.Event) {
		cache.HandleEvent(e)
		publishEvent(mqttClient, log, e)
	})
	defer eventSub.Cancel()

	// Sync adapter inventories into the registry at startup
	syncDevices(ctx, devices, platforms, log)

	// API server
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Devices:   devices,
		Platforms: platforms,
		Executor:  executor,
		Cache:     cache,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Background loops: registry snapshot autosave + telemetry stats
	go autosaveLoop(ctx, devices, cfg, log)
	if influxClient != nil {
		go statsLoop(ctx, influxClient, executor, cache)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Final snapshot before the defer chain tears everything down.
	if err := devices.SaveFile(cfg.Registry.SnapshotPath); err != nil {
		log.Error("error saving device snapshot", "error", err)
	} else {
		log.Info("device snapshot saved", "path", cfg.Registry.SnapshotPath)
	}

	log.Info("Unify Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses UNIFY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("UNIFY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerAdapters wires the enabled vendor adapters into the platform
// registry. A disabled platform is simply never registered; its devices
// stay in the registry but route to device_not_found faults.
func registerAdapters(ctx context.Context, cfg *config.Config, platforms *platform.Registry, mqttClient *mqtt.Client, log *logging.Logger) error {
	if cfg.Platforms.Zigbee.Enabled {
		adapter := zigbee.New(mqttClient, zigbee.Config{
			BaseTopic: cfg.Platforms.Zigbee.BaseTopic,
			QoS:       byte(cfg.MQTT.QoS),
		})
		adapter.SetLogger(log.Component("zigbee"))
		if err := platforms.Register(ctx, device.PlatformZigbee, adapter); err != nil {
			return fmt.Errorf("zigbee: %w", err)
		}
		log.Info("zigbee adapter registered", "base_topic", cfg.Platforms.Zigbee.BaseTopic)
	}

	if cfg.Platforms.Hue.Enabled {
		adapter := hue.New(hue.Config{
			BridgeURL: cfg.Platforms.Hue.BridgeURL,
			Username:  cfg.Platforms.Hue.Username,
			Timeout:   cfg.GetHueTimeout(),
		})
		adapter.SetLogger(log.Component("hue"))
		if err := platforms.Register(ctx, device.PlatformHue, adapter); err != nil {
			return fmt.Errorf("hue: %w", err)
		}
		log.Info("hue adapter registered", "bridge", cfg.Platforms.Hue.BridgeURL)
	}

	if len(platforms.Platforms()) == 0 {
		log.Warn("no platform adapters enabled")
	}
	return nil
}

// syncDevices pulls adapter inventories into the device registry.
// Failures degrade gracefully: a platform that cannot list its devices is
// logged and skipped, matching the aggregate-read contract.
func syncDevices(ctx context.Context, devices *device.Registry, platforms *platform.Registry, log *logging.Logger) {
	found, failures, err := platforms.ListAllDevices(ctx)
	if err != nil {
		log.Warn("device sync failed", "error", err)
		return
	}
	for _, f := range failures {
		log.Warn("platform failed during device sync", "platform", f.Platform, "error", f.Err)
	}

	added := 0
	for i := range found {
		if _, exists := devices.Get(found[i].ID); exists {
			continue
		}
		if err := devices.Add(&found[i]); err != nil {
			log.Warn("skipping device during sync", "device_id", found[i].ID, "error", err)
			continue
		}
		added++
	}
	log.Info("device sync complete", "discovered", len(found), "added", added)
}

// publishEvent mirrors an adapter event onto the canonical MQTT surface.
func publishEvent(client *mqtt.Client, log *logging.Logger, e platform.Event) {
	if client == nil || !client.IsConnected() {
		return
	}

	topics := mqtt.Topics{}
	switch e.Type {
	case platform.EventStateChange:
		payload, err := json.Marshal(map[string]any{
			"device_id": e.DeviceID,
			"state":     e.State,
			"timestamp": e.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			return
		}
		if err := client.PublishRetained(topics.CoreDeviceState(e.DeviceID), payload); err != nil {
			log.Debug("state publish failed", "device_id", e.DeviceID, "error", err)
		}
	case platform.EventDeviceAdded, platform.EventDeviceRemoved:
		payload, err := json.Marshal(map[string]any{
			"device_id": e.DeviceID,
			"platform":  e.Platform,
			"timestamp": e.Timestamp.Format(time.RFC3339),
		})
		if err != nil {
			return
		}
		if err := client.Publish(topics.CoreEvent(string(e.Type)), payload, 1, false); err != nil {
			log.Debug("event publish failed", "type", e.Type, "error", err)
		}
	}
}

// autosaveLoop periodically snapshots the device registry to disk.
func autosaveLoop(ctx context.Context, devices *device.Registry, cfg *config.Config, log *logging.Logger) {
	interval := cfg.GetAutosaveInterval()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := devices.SaveFile(cfg.Registry.SnapshotPath); err != nil {
				log.Error("autosave failed", "error", err)
			} else {
				log.Debug("device snapshot autosaved", "devices", devices.Count())
			}
		}
	}
}

// statsLoop exports executor and cache statistics to InfluxDB.
func statsLoop(ctx context.Context, influx *telemetry.Client, executor *command.Executor, cache *statecache.Cache) {
	ticker := time.NewTicker(statsFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influx.WriteExecutorStats(executor.Metrics())
			influx.WriteCacheStats(cache.Metrics())
		}
	}
}
