// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-relyingparty/internal/config"
	"github.com/jeremyhahn/go-relyingparty/internal/rest"
	"github.com/jeremyhahn/go-relyingparty/pkg/metrics"
	"github.com/jeremyhahn/go-relyingparty/pkg/ratelimit"
	"github.com/jeremyhahn/go-relyingparty/pkg/rp"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/relyingparty/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("go-relyingparty server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("RP_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded successfully",
		"rp_id", cfg.WebAuthn.RPID,
		"origins", cfg.WebAuthn.RPOrigins,
		"port", cfg.Server.Port,
		"version", version)

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler(logger)

	// Wire the ceremony service with in-memory stores
	ceremonies := rp.NewMemoryCeremonyStore()
	credentials := rp.NewMemoryCredentialRepository()

	service, err := rp.NewService(rp.ServiceParams{
		Config:               &cfg.WebAuthn,
		CeremonyStore:        ceremonies,
		CredentialRepository: credentials,
		Logger:               logger,
	})
	if err != nil {
		logger.Error("Failed to create relying party service", slog.Any("error", err))
		os.Exit(1)
	}

	// Bound memory held by abandoned ceremonies and sample the pending gauge
	ceremonies.StartSweeper(shutdownCtx, time.Minute)
	metrics.NewCollector(ceremonies, 15*time.Second).Start(shutdownCtx)

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		logger.Error("Failed to load TLS configuration", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := rest.NewServer(&rest.Config{
		Port:           cfg.Server.Port,
		Service:        service,
		TLSConfig:      tlsConfig,
		Limiter:        limiter,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	// Start the server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Relying party server started", "port", cfg.Server.Port)

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", slog.Any("error", err))
	}

	// Gracefully shutdown
	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Error("Error during server shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Server stopped successfully")
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
