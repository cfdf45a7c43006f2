/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package publish prepares signed releases in a releases directory.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/domain/model"
	"github.com/kentakayama/ota-over-http/internal/domain/service"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/kentakayama/ota-over-http/internal/util"
	"github.com/rs/zerolog"
)

// DefaultFile is the firmware file name used when none is configured.
const DefaultFile = "firmware.txt"

var ErrMetadataExists = errors.New("metadata already exists")

// Publisher writes and registers one release per Publish call.
type Publisher struct {
	cfg      *config.PublishConfig
	signer   *signing.Signer
	releases service.ReleaseRepository
	logger   zerolog.Logger
	now      func() time.Time
}

// Result describes a published release.
type Result struct {
	Dir             string
	FirmwarePath    string
	CreatedFirmware bool
	Metadata        *metadata.VersionMetadata
	// Document is metadata.json exactly as written.
	Document []byte
	// COSE is nil unless an envelope was requested.
	COSE []byte
}

// New returns a Publisher. releases may be nil to publish without a registry.
func New(cfg *config.PublishConfig, signer *signing.Signer, releases service.ReleaseRepository, logger zerolog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateVersion(cfg.Version); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	file := cfg.File
	if file == "" {
		file = DefaultFile
	}
	if err := checkFileName(file); err != nil {
		return nil, err
	}
	c := *cfg
	c.File = file
	return &Publisher{
		cfg:      &c,
		signer:   signer,
		releases: releases,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func checkFileName(name string) error {
	if name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: firmware file %q must be a plain file name", domain.ErrConfig, name)
	}
	if name == metadata.FormatJSON.FileName() || name == metadata.FormatCOSE.FileName() {
		return fmt.Errorf("%w: firmware file %q collides with the metadata file", domain.ErrConfig, name)
	}
	return nil
}

// Publish creates the version directory and a placeholder firmware file when
// missing, then signs and writes the metadata and registers the release.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	version := p.cfg.Version
	dir := filepath.Join(p.cfg.ReleasesDir, version)
	res := &Result{Dir: dir, FirmwarePath: filepath.Join(dir, p.cfg.File)}
	log := p.logger.With().Str("version", version).Logger()

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
		}
		log.Info().Str("dir", dir).Msg("created version directory")
	}

	if !util.Exists(res.FirmwarePath) {
		content := fmt.Sprintf("This is %s firmware content", version)
		if err := util.WriteFileAtomic(res.FirmwarePath, []byte(content), 0o644); err != nil {
			return nil, err
		}
		res.CreatedFirmware = true
		log.Info().Str("path", res.FirmwarePath).Msg("created placeholder firmware")
	}

	metaPath := filepath.Join(dir, metadata.FormatJSON.FileName())
	if util.Exists(metaPath) && !p.cfg.Overwrite {
		return nil, fmt.Errorf("%w: %s, use overwrite to replace it", ErrMetadataExists, metaPath)
	}

	digest, err := store.Digest(res.FirmwarePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(res.FirmwarePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	seq, err := p.sequence(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	unsigned := &metadata.VersionMetadata{
		Version:   version,
		File:      p.cfg.File,
		SHA256:    digest,
		Timestamp: metadata.Timestamp(now),
		Sequence:  seq,
	}
	res.Metadata, err = p.signer.SignMetadata(unsigned)
	if err != nil {
		return nil, err
	}
	res.Document, err = res.Metadata.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := util.WriteFileAtomic(metaPath, res.Document, 0o644); err != nil {
		return nil, err
	}

	cosePath := filepath.Join(dir, metadata.FormatCOSE.FileName())
	if p.cfg.COSE {
		res.COSE, err = p.signer.SignCOSE(unsigned)
		if err != nil {
			return nil, err
		}
		if err := util.WriteFileAtomic(cosePath, res.COSE, 0o644); err != nil {
			return nil, err
		}
	} else if err := os.Remove(cosePath); err == nil {
		// An envelope from an earlier publish no longer matches.
		log.Warn().Str("path", cosePath).Msg("removed stale envelope")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	if p.releases != nil {
		if _, err := p.releases.Create(ctx, &model.Release{
			Version:   version,
			File:      p.cfg.File,
			SHA256:    digest,
			Sequence:  seq,
			Size:      info.Size(),
			Metadata:  res.Document,
			COSE:      res.COSE,
			CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("register release: %w", err)
		}
	}

	log.Info().
		Str("sha256", digest).
		Uint64("sequence", seq).
		Bool("cose", res.COSE != nil).
		Msg("release published")
	return res, nil
}

// sequence picks the explicit sequence, the one of an existing release being
// republished, or the next after the registry maximum.
func (p *Publisher) sequence(ctx context.Context) (uint64, error) {
	if p.cfg.Sequence != 0 || p.releases == nil {
		return p.cfg.Sequence, nil
	}
	existing, err := p.releases.FindByVersion(ctx, p.cfg.Version)
	switch {
	case err == nil && existing.Sequence != 0:
		return existing.Sequence, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return 0, fmt.Errorf("lookup release: %w", err)
	}
	maxSeq, err := p.releases.MaxSequence(ctx)
	if err != nil {
		return 0, fmt.Errorf("read max sequence: %w", err)
	}
	return maxSeq + 1, nil
}
