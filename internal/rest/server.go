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

// Package rest composes the HTTP server: router, middleware, ceremony
// endpoints, health and metrics.
package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jeremyhahn/go-relyingparty/pkg/metrics"
	"github.com/jeremyhahn/go-relyingparty/pkg/ratelimit"
	"github.com/jeremyhahn/go-relyingparty/pkg/rp"
	rphttp "github.com/jeremyhahn/go-relyingparty/pkg/rp/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the relying party HTTP server.
type Server struct {
	server    *http.Server
	router    *chi.Mux
	port      int
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// Config holds the HTTP server configuration.
type Config struct {
	// Port is the HTTP port to listen on (default: 8080)
	Port int

	// Service is the ceremony service the endpoints are backed by (required).
	Service *rp.Service

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Limiter is the rate limiter applied to all routes (optional)
	Limiter *ratelimit.Limiter

	// MetricsEnabled exposes Prometheus metrics at MetricsPath.
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path (default: /metrics)
	MetricsPath string

	// Logger is the structured logger (optional, defaults to slog.Default)
	Logger *slog.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new relying party HTTP server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		port:      cfg.Port,
		tlsConfig: cfg.TLSConfig,
		logger:    logger,
	}
	server.router = server.setupRouter(cfg)

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	if cfg.Limiter != nil && cfg.Limiter.IsEnabled() {
		r.Use(ratelimit.Middleware(cfg.Limiter))
	}

	r.Get("/healthz", s.healthHandler)
	r.Head("/healthz", s.healthHandler)

	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	handler := rphttp.NewHandler(cfg.Service).WithLogger(s.logger)
	rphttp.MountChi(r, handler)

	return r
}

// healthHandler reports server liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS server", "port", s.port)
		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
