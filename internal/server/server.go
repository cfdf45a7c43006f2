/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     *config.ServerConfig
	catalog *Catalog
	handler *handler
	http    *http.Server
	logger  zerolog.Logger
}

// New constructs a Server using the provided configuration. gatherer may be
// nil when metrics are disabled.
func New(cfg *config.ServerConfig, catalog *Catalog, cache MetadataCache, m metrics.ServerMetrics, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	h := newHandler(catalog, cache, m, gatherer, cfg.Compression, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		catalog: catalog,
		handler: h,
		http:    httpSrv,
		logger:  logger,
	}
}

// Handler exposes the routing stack, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sync registers releases found on disk before serving.
func (s *Server) Sync(ctx context.Context) error {
	added, err := s.catalog.Sync(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().Int("added", added).Str("dir", s.cfg.ReleasesDir).Msg("releases synchronized")
	return nil
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("run OTA distribution server")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info().Str("addr", l.Addr().String()).Msg("run OTA distribution server")

	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
