/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kentakayama/ota-over-http/internal/config"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/rs/zerolog"
)

// New builds the process logger. A nil writer means stderr.
func New(cfg config.LoggerConfig, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil || l == zerolog.NoLevel {
			return zerolog.Nop(), fmt.Errorf("%w: unknown log level %q", domain.ErrConfig, cfg.Level)
		}
		level = l
	}

	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("%w: unknown log format %q", domain.ErrConfig, cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
