/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. OTA_SERVER_URL or
// OTA_TLS_MODE.
const EnvPrefix = "OTA"

var updaterDefaults = map[string]any{
	"server_url":        "",
	"device_id":         "dev-001",
	"public_key":        "public.pem",
	"root_dir":          ".",
	"pointer":           "symlink",
	"metadata_format":   "json",
	"compression":       false,
	"progress":          false,
	"tls.mode":          "system",
	"tls.ca_file":       "",
	"timeouts.metadata": 30 * time.Second,
	"timeouts.download": 60 * time.Second,
	"logger.level":      "info",
	"logger.format":     "console",
	"metrics.enabled":   false,
	"metrics.textfile":  "",
}

var serverDefaults = map[string]any{
	"addr":             ":8080",
	"releases_dir":     "releases",
	"database":         "ota.db",
	"public_key":       "",
	"compression":      true,
	"shutdown_timeout": 10 * time.Second,
	"cache.enabled":    true,
	"cache.size_mb":    16,
	"cache.ttl":        5 * time.Minute,
	"logger.level":     "info",
	"logger.format":    "console",
	"metrics.enabled":  true,
	"metrics.textfile": "",
}

// LoadUpdater reads the updater configuration. An empty path uses defaults
// and the environment only.
func LoadUpdater(path string) (*UpdaterConfig, error) {
	var cfg UpdaterConfig
	if err := load(path, updaterDefaults, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, serverDefaults, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, defaults map[string]any, out any) error {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read %s: %w", domain.ErrConfig, path, err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("%w: unable to decode into config struct: %w", domain.ErrConfig, err)
	}
	return nil
}

func (c *UpdaterConfig) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.TLS.Mode == "custom" && c.TLS.CAFile == "" {
		return fmt.Errorf("%w: tls.ca_file is required when tls.mode is custom", domain.ErrConfig)
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	return validateStruct(c)
}

func (c *PublishConfig) Validate() error {
	return validateStruct(c)
}

func validateStruct(s any) error {
	v := validate.Struct(s)
	if v.Validate() {
		return nil
	}
	return errors.Join(domain.ErrConfig, v.Errors)
}
