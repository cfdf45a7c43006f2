/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"time"

	"github.com/rs/zerolog"
)

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error"`
	Format string `mapstructure:"format" validate:"required|in:console,json"`
}

// TLSConfig selects how the updater trusts the distribution server.
// "insecure" skips certificate verification and is meant for lab setups.
type TLSConfig struct {
	Mode   string `mapstructure:"mode" validate:"required|in:system,custom,insecure"`
	CAFile string `mapstructure:"ca_file"`
}

type TimeoutConfig struct {
	Metadata time.Duration `mapstructure:"metadata" validate:"required|min:1"`
	Download time.Duration `mapstructure:"download" validate:"required|min:1"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	SizeMB  int           `mapstructure:"size_mb" validate:"min:1"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// UpdaterConfig is the device side configuration file.
type UpdaterConfig struct {
	ServerURL      string        `mapstructure:"server_url" validate:"required|fullUrl"`
	DeviceID       string        `mapstructure:"device_id" validate:"required"`
	PublicKey      string        `mapstructure:"public_key" validate:"required"`
	RootDir        string        `mapstructure:"root_dir" validate:"required"`
	Pointer        string        `mapstructure:"pointer" validate:"required|in:symlink,file"`
	MetadataFormat string        `mapstructure:"metadata_format" validate:"required|in:json,cose"`
	Compression    bool          `mapstructure:"compression"`
	Progress       bool          `mapstructure:"progress"`
	TLS            TLSConfig     `mapstructure:"tls"`
	Timeouts       TimeoutConfig `mapstructure:"timeouts"`
	Logger         LoggerConfig  `mapstructure:"logger"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig is the distribution server configuration file.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReleasesDir     string        `mapstructure:"releases_dir" validate:"required"`
	Database        string        `mapstructure:"database" validate:"required"`
	PublicKey       string        `mapstructure:"public_key"`
	Compression     bool          `mapstructure:"compression"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required|min:1"`
	Cache           CacheConfig   `mapstructure:"cache"`
	Logger          LoggerConfig  `mapstructure:"logger"`
	Metrics         MetricsConfig `mapstructure:"metrics"`
}

// ClientConfig captures the tunables of the update channel client.
type ClientConfig struct {
	BaseURL         string
	TLS             TLSConfig
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	Compression     bool
	Progress        bool
	Logger          zerolog.Logger
}

// PublishConfig captures one invocation of the release publisher.
// An empty Database publishes without a registry; Sequence 0 means
// "next after the registry maximum", or no sequence without a registry.
type PublishConfig struct {
	ReleasesDir string `validate:"required"`
	Version     string `validate:"required"`
	File        string
	PrivateKey  string `validate:"required"`
	Database    string
	Sequence    uint64
	Overwrite   bool
	COSE        bool
}

// Client derives the client settings from the updater file.
func (c *UpdaterConfig) Client(logger zerolog.Logger) ClientConfig {
	return ClientConfig{
		BaseURL:         c.ServerURL,
		TLS:             c.TLS,
		MetadataTimeout: c.Timeouts.Metadata,
		DownloadTimeout: c.Timeouts.Download,
		Compression:     c.Compression,
		Progress:        c.Progress,
		Logger:          logger,
	}
}
