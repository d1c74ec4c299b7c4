// Package app assembles the server process: configuration, the logging
// router, the hub, and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"strconv"
	"time"

	"voxelrift/internal/config"
	servernet "voxelrift/internal/net"
	"voxelrift/internal/server"
	"voxelrift/internal/telemetry"
	"voxelrift/logging"
	loggingSinks "voxelrift/logging/sinks"
)

// Config carries what the entry point decides: where the YAML file lives and
// which logger backs the plain-text path.
type Config struct {
	ConfigPath string
	Logger     telemetry.Logger
}

// Run starts the server and blocks until the context is cancelled or the
// listener fails.
func Run(ctx context.Context, appCfg Config) error {
	logger := appCfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	cfg, err := config.Load(appCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyEnvOverrides(&cfg, logger)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	var namedSinks []logging.NamedSink
	if cfg.Logging.HasSink("console") {
		namedSinks = append(namedSinks, logging.NamedSink{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout)})
	}
	if cfg.Logging.HasSink("json") && cfg.Logging.JSON.FilePath != "" {
		file, err := os.OpenFile(cfg.Logging.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log: %w", err)
		}
		namedSinks = append(namedSinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSONSink(file, cfg.Logging.JSON.FlushInterval)})
	}

	router := logging.NewRouter(logging.SystemClock{}, cfg.Logging, namedSinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := logging.NewMetrics()
	hub := server.NewHub(cfg, router, metrics, logger)

	stop := make(chan struct{})
	go hub.Run(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{Logger: logger})
	srv := &nethttp.Server{Addr: cfg.ListenAddr, Handler: handler}
	logger.Printf("server listening on %s (tick rate %d, seed %q)", cfg.ListenAddr, cfg.Simulation.TickRate, cfg.Simulation.Seed)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
}

// applyEnvOverrides lets operators tweak the hot settings without editing
// the config file.
func applyEnvOverrides(cfg *config.Config, logger telemetry.Logger) {
	if raw := os.Getenv("LISTEN_ADDR"); raw != "" {
		cfg.ListenAddr = raw
	}
	if raw := os.Getenv("WORLD_SEED"); raw != "" {
		cfg.Simulation.Seed = raw
	}
	if raw := os.Getenv("TICK_RATE_HZ"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.Simulation.TickRate = value
		} else {
			logger.Printf("invalid TICK_RATE_HZ=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("KEYFRAME_INTERVAL_TICKS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.Journal.KeyframeInterval = value
		} else {
			logger.Printf("invalid KEYFRAME_INTERVAL_TICKS=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("CHUNK_RADIUS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.Chunks.Radius = value
		} else {
			logger.Printf("invalid CHUNK_RADIUS=%q: %v", raw, err)
		}
	}
}
