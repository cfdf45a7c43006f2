/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package di

import (
	"context"
	"database/sql"
	"os"

	"github.com/kentakayama/ota-over-http/internal/activation"
	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/fetch"
	"github.com/kentakayama/ota-over-http/internal/infra/sqlite"
	"github.com/kentakayama/ota-over-http/internal/logging"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/metrics"
	"github.com/kentakayama/ota-over-http/internal/server"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/kentakayama/ota-over-http/internal/updater"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ServerApp is the assembled distribution server.
type ServerApp struct {
	Config *config.ServerConfig
	Logger zerolog.Logger
	Server *server.Server
}

// UpdaterApp is the assembled device side updater.
type UpdaterApp struct {
	Config  *config.UpdaterConfig
	Logger  zerolog.Logger
	Store   *store.Store
	Manager *activation.Manager
	Metrics metrics.UpdaterMetrics
	Runner  *updater.Updater
}

func provideServerLogger(cfg *config.ServerConfig) (zerolog.Logger, error) {
	return logging.New(cfg.Logger, os.Stderr)
}

func provideDB(cfg *config.ServerConfig) (*sql.DB, func(), error) {
	db, err := sqlite.InitDB(context.Background(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { sqlite.CloseDB(db) }, nil
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideServerMetrics(cfg *config.ServerConfig, reg *prometheus.Registry) metrics.ServerMetrics {
	return metrics.NewServerMetrics(cfg.Metrics.Enabled, reg)
}

// provideGatherer returns nil when metrics are disabled so /metrics is not
// routed.
func provideGatherer(cfg *config.ServerConfig, reg *prometheus.Registry) prometheus.Gatherer {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return reg
}

func provideUpdaterLogger(cfg *config.UpdaterConfig) (zerolog.Logger, error) {
	return logging.New(cfg.Logger, os.Stderr)
}

func provideVerifier(cfg *config.UpdaterConfig) (*signing.Verifier, error) {
	return signing.LoadVerifier(cfg.PublicKey)
}

func provideStore(cfg *config.UpdaterConfig, logger zerolog.Logger) (*store.Store, error) {
	return store.Open(cfg.RootDir, logger)
}

func providePointer(cfg *config.UpdaterConfig, st *store.Store) (activation.Pointer, error) {
	return activation.NewPointer(cfg.Pointer, st.Root(), st.StatePath())
}

func provideClient(cfg *config.UpdaterConfig, logger zerolog.Logger) (*fetch.Client, error) {
	return fetch.NewClient(cfg.Client(logger))
}

func provideUpdaterMetrics(cfg *config.UpdaterConfig) metrics.UpdaterMetrics {
	return metrics.NewUpdaterMetrics(cfg.Metrics.Enabled || cfg.Metrics.Textfile != "")
}

func provideUpdaterConfig(cfg *config.UpdaterConfig, logger zerolog.Logger) updater.Config {
	return updater.Config{
		DeviceID: cfg.DeviceID,
		Format:   metadata.Format(cfg.MetadataFormat),
		Logger:   logger,
	}
}
