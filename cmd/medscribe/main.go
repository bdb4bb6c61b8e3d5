package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scribelab/medscribe/internal/api"
	"github.com/scribelab/medscribe/internal/assemblyai"
	"github.com/scribelab/medscribe/internal/config"
	"github.com/scribelab/medscribe/internal/enrich"
	"github.com/scribelab/medscribe/internal/metrics"
	"github.com/scribelab/medscribe/internal/scribe"
	"github.com/scribelab/medscribe/internal/storage/sqlite"
	"github.com/scribelab/medscribe/pkg/logger"
)

const (
	defaultConfigPath = "config.toml"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env if present so API keys can live next to the binary.
	_ = godotenv.Load()

	// The default config path is optional; an explicitly given one is not.
	if *configPath == defaultConfigPath {
		if _, err := os.Stat(*configPath); os.IsNotExist(err) {
			*configPath = ""
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Service starting",
		logger.String("version", serviceVersion),
		logger.String("config_path", *configPath))

	// Storage
	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	store, err := sqlite.NewEncounterStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize encounter storage", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Encounter storage initialized",
		logger.String("path", cfg.Storage.SQLitePath))

	// Metrics
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	// Collaborator clients
	aaiClient := assemblyai.NewClient(&cfg.AssemblyAI, log)
	enricher := enrich.NewEnricher(&cfg.OpenAI, appMetrics, log)

	// Encounter service
	events := scribe.NewLogSink(log)
	service := scribe.NewService(cfg, aaiClient, enricher, store, events, appMetrics, log)

	// HTTP server
	router := api.NewRouter(service, aaiClient, store, cfg, appMetrics, registry, log)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server failed", logger.Error(err))
	}

	log.Info("Starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", logger.Error(err))
	}
	if err := service.Close(); err != nil {
		log.Error("Error closing encounter service", logger.Error(err))
	}

	log.Info("Service stopped")
}
