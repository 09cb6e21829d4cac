package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cyclops-power/internal/chargers"
	"cyclops-power/internal/charging"
	"cyclops-power/internal/config"
	"cyclops-power/internal/models"
	"cyclops-power/internal/mqtt"
	"cyclops-power/internal/simulation"
	"cyclops-power/internal/status"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	settingsPath := pflag.String("settings", "", "path to the persisted settings file (overrides config)")
	pflag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *settingsPath != "" {
		cfg.Settings.File = *settingsPath
	}

	logger.Infof("Starting power server with %d consumer(s)", len(cfg.Consumers))

	settings := config.LoadSettings(cfg.Settings.File, logger)
	settings.Watch()

	registry := charging.NewRegistry(logger)
	chargers.RegisterDefaults(registry, cfg.Chargers, logger)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics, err := charging.NewMetrics(promRegistry)
	if err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}

	directory := charging.NewDirectory(registry, func(*models.Consumer) charging.ConfigProvider {
		return settings.ForConsumer()
	}, logger)
	directory.SetMetrics(metrics)

	sim := models.NewSimulationState()

	consumers := make([]*models.Consumer, 0, len(cfg.Consumers))
	for _, cc := range cfg.Consumers {
		relay := models.NewPowerRelay(cc.MaxPower, cc.InitialPower)
		env := models.NewEnvironment(cfg.Simulation.SmoothingFactor)
		consumer := models.NewConsumer(cc.ID, cc.Name, relay, sim, env)
		consumer.LoadPerTick = cc.LoadPerTick

		manager, err := directory.GetOrCreateManager(consumer)
		if err != nil {
			logger.Errorf("Failed to create manager for %s: %v", cc.ID, err)
			continue
		}
		if _, err := manager.Initialize(); err != nil {
			logger.Errorf("Failed to initialize chargers for %s: %v", cc.ID, err)
			continue
		}
		consumers = append(consumers, consumer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := simulation.NewDriver(directory, time.Duration(cfg.Simulation.TickInterval)*time.Millisecond, logger)

	statusServer := status.NewServer(cfg, directory, settings, promRegistry, logger)
	driver.AddTickCallback(statusServer.Broadcast)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqtt.NewClient(cfg, settings, sim, logger)
		if err != nil {
			logger.Fatalf("Failed to create MQTT client: %v", err)
		}
		for _, consumer := range consumers {
			mqttClient.AddConsumer(consumer)
		}
		mqttClient.SetSettingsCallback(func(key string) {
			logger.Debugf("MQTT: setting %s changed", key)
		})
		driver.AddTickCallback(mqttClient.PublishState)
	} else {
		logger.Warn("No MQTT broker configured, environment readings will stay at their defaults")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := statusServer.Start(ctx); err != nil {
			logger.Errorf("Status server error: %v", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		driver.Start(ctx)
	}()

	if mqttClient != nil {
		if err := mqttClient.Connect(); err != nil {
			logger.Fatalf("Failed to connect to MQTT: %v", err)
		}
		defer mqttClient.Disconnect()
	}

	logger.Info("All services started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down...")
	cancel()

	statusServer.Stop()

	wg.Wait()
	settings.WaitForSaves()
	logger.Info("Shutdown complete")
}
