/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command ota-server serves signed firmware releases to updaters.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kentakayama/ota-over-http/internal/di"
	"github.com/kentakayama/ota-over-http/resources"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	exampleConfig := flag.Bool("example-config", false, "print an annotated configuration file and exit")
	flag.Parse()

	if *exampleConfig {
		os.Stdout.Write(resources.ServerExampleConfig)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ota-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	app, cleanup, err := di.InitServer(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Server.Sync(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		app.Logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.ShutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serverErr; err != nil {
		return err
	}
	app.Logger.Info().Msg("gracefully stopped")
	return nil
}
