/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"github.com/coocood/freecache"
	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/rs/zerolog"
)

// MetadataCache holds served metadata documents keyed by version and format.
type MetadataCache interface {
	Get(version string, format metadata.Format) ([]byte, bool)
	Set(version string, format metadata.Format, doc []byte)
}

type freeCache struct {
	cache *freecache.Cache
	ttl   int
}

func NewMetadataCache(cfg *config.ServerConfig, logger zerolog.Logger) MetadataCache {
	if !cfg.Cache.Enabled || cfg.Cache.SizeMB <= 0 {
		logger.Info().Msg("metadata cache disabled")
		return noopCache{}
	}
	// freecache treats 0 as "never expires".
	ttl := max(int(cfg.Cache.TTL.Seconds()), 0)
	logger.Info().Int("size_mb", cfg.Cache.SizeMB).Int("ttl_seconds", ttl).Msg("metadata cache initialized")
	return &freeCache{
		cache: freecache.NewCache(cfg.Cache.SizeMB * 1024 * 1024),
		ttl:   ttl,
	}
}

func cacheKey(version string, format metadata.Format) []byte {
	return []byte(string(format) + "/" + version)
}

func (c *freeCache) Get(version string, format metadata.Format) ([]byte, bool) {
	doc, err := c.cache.Get(cacheKey(version, format))
	if err != nil {
		return nil, false
	}
	return doc, true
}

func (c *freeCache) Set(version string, format metadata.Format, doc []byte) {
	_ = c.cache.Set(cacheKey(version, format), doc, c.ttl)
}

type noopCache struct{}

func (noopCache) Get(_ string, _ metadata.Format) ([]byte, bool) { return nil, false }
func (noopCache) Set(_ string, _ metadata.Format, _ []byte)      {}
