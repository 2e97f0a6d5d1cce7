package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saaga0h/jeeves-thermolight/internal/thermolight"
	"github.com/saaga0h/jeeves-thermolight/pkg/config"
	"github.com/saaga0h/jeeves-thermolight/pkg/health"
	"github.com/saaga0h/jeeves-thermolight/pkg/mqtt"
	"github.com/saaga0h/jeeves-thermolight/pkg/redis"
	"github.com/saaga0h/jeeves-thermolight/pkg/sensor"
)

func main() {
	// Load configuration with hierarchy: defaults → YAML file → .env → env → flags
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Thermolight Agent",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"sensor_url", cfg.TempSensorURL,
		"device_id", cfg.TuyaDeviceID,
		"device_address", cfg.TuyaAddress,
		"local_key", cfg.RedactedLocalKey(),
		"cold_color", config.FormatColor(cfg.ColdColor),
		"mid_color", config.FormatColor(cfg.MidColor),
		"hot_color", config.FormatColor(cfg.HotColor),
		"mqtt_enabled", cfg.MQTTEnabled(),
		"redis_enabled", cfg.RedisEnabled(),
		"log_level", cfg.LogLevel)

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sensorClient, err := sensor.NewClient(cfg.TempSensorURL,
		sensor.WithTimeout(cfg.SensorTimeout),
		sensor.WithMinInterval(time.Duration(cfg.SensorRateLimitSec*float64(time.Second))),
		sensor.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	session := thermolight.NewSession(
		thermolight.TuyaDialer(cfg.TuyaDeviceID, cfg.TuyaAddress, cfg.TuyaLocalKey, cfg.TuyaTimeout, logger),
		logger)

	// MQTT and Redis are optional; keep the interfaces nil when disabled
	var mqttClient mqtt.Client
	if cfg.MQTTEnabled() {
		mqttClient = mqtt.NewClient(cfg, logger)
	}
	var redisClient redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(cfg, logger)
	}

	metrics := thermolight.NewMetrics(cfg.Location)

	agent, err := thermolight.NewAgent(cfg, session, sensorClient, mqttClient, redisClient, metrics, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Start health check server
	healthChecker := health.NewChecker(agent, mqttClient, redisClient, 3*cfg.UpdateInterval+cfg.SensorTimeout, logger)
	httpServer := startHealthServer(cfg.HealthPort, healthChecker, metrics.Handler(), logger)

	// Start agent in a goroutine
	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			agentErr <- err
		}
	}()

	// Wait for shutdown signal or agent error
	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
		exitCode = 1
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	cancel()

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Thermolight agent shutdown complete")
	if exitCode != 0 {
		shutdownCancel()
		os.Exit(exitCode)
	}
}

func startHealthServer(port int, checker *health.Checker, metrics http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           checker.Mux(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
