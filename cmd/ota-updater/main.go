/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command ota-updater runs one update pass against the distribution server.
// Scheduling repeated passes is left to cron or a systemd timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kentakayama/ota-over-http/internal/di"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/resources"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitSetup  = 2
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	exampleConfig := flag.Bool("example-config", false, "print an annotated configuration file and exit")
	status := flag.Bool("status", false, "print the active and installed versions and exit")
	flag.Parse()

	if *exampleConfig {
		os.Stdout.Write(resources.UpdaterExampleConfig)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, *configPath, *status, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, configPath string, status bool, stdout, stderr io.Writer) int {
	app, err := di.InitUpdater(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ota-updater: %v\n", err)
		return exitSetup
	}

	if status {
		if err := printStatus(app, stdout); err != nil {
			fmt.Fprintf(stderr, "ota-updater: %v\n", err)
			return exitFailed
		}
		return exitOK
	}

	res := app.Runner.Run(ctx)
	if path := app.Config.Metrics.Textfile; path != "" {
		if err := app.Metrics.WriteTextfile(path); err != nil {
			app.Logger.Warn().Err(err).Str("path", path).Msg("failed writing metrics textfile")
		}
	}

	if !res.OK() {
		fmt.Fprintf(stderr, "update failed at %s (%s): %v\n", res.FailedAt, domain.Kind(res.Err), res.Err)
		return exitFailed
	}
	switch {
	case res.Updated:
		fmt.Fprintf(stdout, "updated %s -> %s\n", displayVersion(res.Current), res.Target)
	default:
		fmt.Fprintf(stdout, "up to date at %s\n", displayVersion(res.Current))
	}
	return exitOK
}

func printStatus(app *di.UpdaterApp, w io.Writer) error {
	current, err := app.Manager.Current()
	if err != nil {
		return err
	}
	installed, err := app.Store.List()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "active: %s\n", displayVersion(current))
	for _, iv := range installed {
		marker := " "
		if iv.Version == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %s  %s\n", marker, iv.Version,
			iv.InstalledAt.UTC().Format(metadata.TimestampLayout), iv.Digest, iv.Format)
	}
	return nil
}

func displayVersion(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
