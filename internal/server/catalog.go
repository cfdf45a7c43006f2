/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/domain/model"
	"github.com/kentakayama/ota-over-http/internal/domain/service"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/metrics"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/kentakayama/ota-over-http/internal/util"
	"github.com/rs/zerolog"
)

// Catalog answers release queries from the registry and keeps it in step
// with the releases directory.
type Catalog struct {
	dir      string
	releases service.ReleaseRepository
	devices  service.DeviceRepository
	// verifier is nil when no public key is configured.
	verifier *signing.Verifier
	metrics  metrics.ServerMetrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewCatalog(cfg *config.ServerConfig, releases service.ReleaseRepository, devices service.DeviceRepository, m metrics.ServerMetrics, logger zerolog.Logger) (*Catalog, error) {
	c := &Catalog{
		dir:      cfg.ReleasesDir,
		releases: releases,
		devices:  devices,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	if cfg.PublicKey != "" {
		v, err := signing.LoadVerifier(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		c.verifier = v
	} else {
		logger.Warn().Msg("no public_key configured, releases are registered without signature checks")
	}
	return c, nil
}

// Sync registers every release found under the releases directory that the
// registry does not know yet. Releases failing verification are skipped.
func (c *Catalog) Sync(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("%w: read releases dir: %w", domain.ErrIO, err)
	}
	known, err := c.releases.List(ctx)
	if err != nil {
		return 0, err
	}
	registered := util.NewSet[string]()
	for _, r := range known {
		registered.Add(r.Version)
	}

	added := 0
	for _, e := range entries {
		if !e.IsDir() || registered.Has(e.Name()) {
			continue
		}
		log := c.logger.With().Str("version", e.Name()).Logger()
		rel, err := c.load(e.Name())
		if err != nil {
			log.Warn().Err(err).Str("kind", domain.Kind(err)).Msg("skipping release")
			continue
		}
		if _, err := c.releases.Create(ctx, rel); err != nil {
			return added, fmt.Errorf("register %s: %w", rel.Version, err)
		}
		registered.Add(rel.Version)
		added++
		log.Info().Uint64("sequence", rel.Sequence).Msg("release registered")
	}
	c.metrics.SetReleasesTotal(len(registered))
	return added, nil
}

// load reads and checks one release directory.
func (c *Catalog) load(version string) (*model.Release, error) {
	if err := metadata.ValidateVersion(version); err != nil {
		return nil, err
	}
	dir := filepath.Join(c.dir, version)
	doc, err := os.ReadFile(filepath.Join(dir, metadata.FormatJSON.FileName()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	var meta *metadata.VersionMetadata
	if c.verifier != nil {
		meta, err = c.verifier.VerifyDocument(doc)
	} else {
		meta, err = metadata.Parse(doc)
	}
	if err != nil {
		return nil, err
	}
	if meta.Version != version {
		return nil, fmt.Errorf("%w: directory %s holds metadata for %s", domain.ErrVersionMismatch, version, meta.Version)
	}
	if meta.File != filepath.Base(meta.File) || strings.HasPrefix(meta.File, ".") {
		return nil, fmt.Errorf("%w: file %q is not a plain file name", domain.ErrMalformedMetadata, meta.File)
	}

	payload := filepath.Join(dir, meta.File)
	digest, err := store.Digest(payload)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(digest, meta.SHA256) {
		return nil, fmt.Errorf("%w: %s has %s, metadata says %s", domain.ErrHashMismatch, meta.File, digest, meta.SHA256)
	}
	info, err := os.Stat(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	cose, err := c.loadCOSE(dir, meta)
	if err != nil {
		return nil, err
	}

	return &model.Release{
		Version:   meta.Version,
		File:      meta.File,
		SHA256:    strings.ToLower(meta.SHA256),
		Sequence:  meta.Sequence,
		Size:      info.Size(),
		Metadata:  doc,
		COSE:      cose,
		CreatedAt: c.now().UTC(),
	}, nil
}

// loadCOSE returns the optional envelope of a release. It must describe the
// same release as the JSON document.
func (c *Catalog) loadCOSE(dir string, meta *metadata.VersionMetadata) ([]byte, error) {
	env, err := os.ReadFile(filepath.Join(dir, metadata.FormatCOSE.FileName()))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if c.verifier == nil {
		return env, nil
	}
	m, err := c.verifier.VerifyCOSE(env)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if m.Version != meta.Version || !strings.EqualFold(m.SHA256, meta.SHA256) || m.Sequence != meta.Sequence {
		return nil, fmt.Errorf("%w: envelope and metadata.json disagree", domain.ErrVersionMismatch)
	}
	return env, nil
}

// Release returns a registered release or domain.ErrNotFound.
func (c *Catalog) Release(ctx context.Context, version string) (*model.Release, error) {
	if err := metadata.ValidateVersion(version); err != nil {
		return nil, err
	}
	return c.releases.FindByVersion(ctx, version)
}

// Releases lists the registry oldest first.
func (c *Catalog) Releases(ctx context.Context) ([]*model.Release, error) {
	rs, err := c.releases.List(ctx)
	if err != nil {
		return nil, err
	}
	model.Sort(rs)
	return rs, nil
}

// Latest returns the newest release, or domain.ErrNotFound for an empty
// registry. Releases without a sequence are only consulted when no
// sequenced release exists.
func (c *Catalog) Latest(ctx context.Context) (*model.Release, error) {
	rel, err := c.releases.FindLatest(ctx)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return rel, err
	}
	rs, err := c.releases.List(ctx)
	if err != nil {
		return nil, err
	}
	if latest := model.Latest(rs); latest != nil {
		return latest, nil
	}
	return nil, domain.ErrNotFound
}

// CheckIn records that deviceID reported current and returns the release it
// should run, nil when none is published.
func (c *Catalog) CheckIn(ctx context.Context, deviceID, current string) (*model.Release, error) {
	if deviceID != "" {
		if err := c.devices.Touch(ctx, deviceID, current, c.now().UTC()); err != nil {
			return nil, fmt.Errorf("record device: %w", err)
		}
	}
	rel, err := c.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return rel, err
}

// PayloadPath is the on-disk firmware of rel.
func (c *Catalog) PayloadPath(rel *model.Release) string {
	return filepath.Join(c.dir, rel.Version, rel.File)
}
