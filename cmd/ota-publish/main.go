/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command ota-publish signs a firmware release into a releases directory.
//
//	ota-publish [flags] <version>
//	ota-publish -keygen <dir>
//	ota-publish -inspect <releases>/<version>/metadata.cose
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/infra/sqlite"
	"github.com/kentakayama/ota-over-http/internal/logging"
	"github.com/kentakayama/ota-over-http/internal/publish"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/util"
	"github.com/rs/zerolog"
)

var (
	releasesDir = flag.String("releases-dir", "releases", "directory holding one sub-directory per version")
	privateKey  = flag.String("key", "keys/private.pem", "PEM encoded RSA private key")
	file        = flag.String("file", publish.DefaultFile, "firmware file name inside the version directory")
	database    = flag.String("db", "", "release registry to update; empty publishes to disk only")
	sequence    = flag.Uint64("sequence", 0, "explicit sequence number; 0 picks the next one from -db")
	overwrite   = flag.Bool("overwrite", false, "replace existing metadata")
	withCOSE    = flag.Bool("cose", false, "also write metadata.cose")
	keygen      = flag.String("keygen", "", "generate a key pair into this directory and exit")
	keyBits     = flag.Int("bits", 3072, "RSA modulus size for -keygen")
	inspect     = flag.String("inspect", "", "print a COSE metadata envelope and exit")
	logLevel    = flag.String("log-level", "info", "trace, debug, info, warn or error")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <version>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := logging.New(config.LoggerConfig{Level: *logLevel, Format: "console"}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ota-publish: %v\n", err)
		os.Exit(2)
	}

	if err := run(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "ota-publish: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zerolog.Logger) error {
	switch {
	case *keygen != "":
		privPath, pubPath, err := publish.GenerateKeyPair(*keygen, *keyBits)
		if err != nil {
			return err
		}
		logger.Info().Str("private", privPath).Str("public", pubPath).Msg("key pair generated")
		return nil
	case *inspect != "":
		env, err := os.ReadFile(*inspect)
		if err != nil {
			return err
		}
		out, err := util.DescribeCOSE(env)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := &config.PublishConfig{
		ReleasesDir: *releasesDir,
		Version:     flag.Arg(0),
		File:        *file,
		PrivateKey:  *privateKey,
		Database:    *database,
		Sequence:    *sequence,
		Overwrite:   *overwrite,
		COSE:        *withCOSE,
	}

	signer, err := signing.LoadSigner(cfg.PrivateKey)
	if err != nil {
		return err
	}

	var p *publish.Publisher
	if cfg.Database != "" {
		db, err := sqlite.InitDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer sqlite.CloseDB(db)
		p, err = publish.New(cfg, signer, sqlite.NewReleaseRepository(db), logger)
		if err != nil {
			return err
		}
	} else {
		p, err = publish.New(cfg, signer, nil, logger)
		if err != nil {
			return err
		}
	}

	res, err := p.Publish(ctx)
	if err != nil {
		return err
	}
	os.Stdout.Write(append(res.Document, '\n'))
	return nil
}
