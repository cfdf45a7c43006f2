/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package activation switches the active firmware version.
package activation

import (
	"fmt"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/rs/zerolog"
)

// Installed answers whether a version is fully present in the store.
type Installed interface {
	IsInstalled(version string) bool
}

type Manager struct {
	store   Installed
	pointer Pointer
	logger  zerolog.Logger
}

func NewManager(store Installed, pointer Pointer, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		pointer: pointer,
		logger:  logger.With().Str("component", "activation").Logger(),
	}
}

// Activate points the device at version. The version must be installed.
// Activating the active version does nothing.
func (m *Manager) Activate(version string) error {
	if !m.store.IsInstalled(version) {
		return fmt.Errorf("%w: %s", domain.ErrVersionNotInstalled, version)
	}
	active, err := m.pointer.Read()
	if err != nil {
		// swapped below whatever it held
		m.logger.Warn().Err(err).Msg("active pointer unreadable")
		active = ""
	}
	if active == version {
		m.logger.Debug().Str("version", version).Msg("already active")
		return nil
	}
	if err := m.pointer.Swap(version); err != nil {
		return err
	}
	m.logger.Info().Str("version", version).Str("previous", active).Msg("active version switched")
	return nil
}

// Current returns the active version, or "" when there is none. A pointer
// that cannot be read, is of the wrong kind, or names a version that is not
// installed counts as none.
func (m *Manager) Current() (string, error) {
	v, err := m.pointer.Read()
	if err != nil {
		m.logger.Warn().Err(err).Msg("active pointer unreadable, treating as none")
		return "", nil
	}
	if v == "" {
		return "", nil
	}
	if !m.store.IsInstalled(v) {
		m.logger.Warn().Str("version", v).Msg("active pointer names a version that is not installed")
		return "", nil
	}
	return v, nil
}
