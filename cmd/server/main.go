//go:build !js && !wasm

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/himanishpuri/SampleFinder/internal/config"
	"github.com/himanishpuri/SampleFinder/internal/metrics"
	"github.com/himanishpuri/SampleFinder/pkg/logger"
	"github.com/himanishpuri/SampleFinder/pkg/samplefinder"
)

var (
	configPath     string
	host           string
	port           int
	allowedOrigins string
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("SAMPLEFINDER_CONFIG", ""), "Path to a YAML configuration file")
	flag.StringVar(&host, "host", "", "Listen address (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.StringVar(&allowedOrigins, "origins", "", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if allowedOrigins != "" {
		cfg.Server.CORSOrigin = allowedOrigins
	}
	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.SetLevel(cfg.Level())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	opts := append(cfg.FinderOptions(log.Named("finder")), samplefinder.WithRecorder(rec))
	finder, err := samplefinder.NewFinder(opts...)
	if err != nil {
		log.Fatalf("Failed to create finder: %v", err)
	}

	server, err := NewServer(finder, cfg, rec)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
