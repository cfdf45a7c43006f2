//go:build wireinject
// +build wireinject

/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package di

import (
	wire "github.com/google/wire"
	"github.com/kentakayama/ota-over-http/internal/activation"
	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain/service"
	"github.com/kentakayama/ota-over-http/internal/fetch"
	"github.com/kentakayama/ota-over-http/internal/infra/sqlite"
	"github.com/kentakayama/ota-over-http/internal/server"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/kentakayama/ota-over-http/internal/updater"
)

func InitServer(path string) (*ServerApp, func(), error) {
	wire.Build(
		config.LoadServer,
		provideServerLogger,
		provideDB,
		sqlite.NewReleaseRepository,
		wire.Bind(new(service.ReleaseRepository), new(*sqlite.ReleaseRepository)),
		sqlite.NewDeviceRepository,
		wire.Bind(new(service.DeviceRepository), new(*sqlite.DeviceRepository)),
		provideRegistry,
		provideServerMetrics,
		provideGatherer,
		server.NewCatalog,
		server.NewMetadataCache,
		server.New,
		wire.Struct(new(ServerApp), "*"),
	)

	return nil, nil, nil
}

func InitUpdater(path string) (*UpdaterApp, error) {
	wire.Build(
		config.LoadUpdater,
		provideUpdaterLogger,
		provideVerifier,
		wire.Bind(new(updater.Verifier), new(*signing.Verifier)),
		provideStore,
		wire.Bind(new(updater.Store), new(*store.Store)),
		wire.Bind(new(activation.Installed), new(*store.Store)),
		providePointer,
		activation.NewManager,
		wire.Bind(new(updater.Activator), new(*activation.Manager)),
		provideClient,
		wire.Bind(new(updater.Source), new(*fetch.Client)),
		provideUpdaterMetrics,
		provideUpdaterConfig,
		updater.New,
		wire.Struct(new(UpdaterApp), "*"),
	)

	return nil, nil
}
