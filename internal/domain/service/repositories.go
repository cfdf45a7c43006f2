/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"
	"time"

	"github.com/kentakayama/ota-over-http/internal/domain/model"
)

// ReleaseRepository defines the interface for release persistence.
type ReleaseRepository interface {
	// Create stores r, replacing an existing release with the same version.
	Create(ctx context.Context, r *model.Release) (int64, error)
	FindByVersion(ctx context.Context, version string) (*model.Release, error)
	// FindLatest returns the release with the highest sequence number.
	FindLatest(ctx context.Context) (*model.Release, error)
	List(ctx context.Context) ([]*model.Release, error)
	MaxSequence(ctx context.Context) (uint64, error)
}

// DeviceRepository defines the interface for device check-in persistence.
type DeviceRepository interface {
	Touch(ctx context.Context, deviceID, reportedVersion string, at time.Time) error
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
}
