/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/domain/model"
)

type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	const query = `
		SELECT id, device_id, reported_version, check_count, created_at, last_seen_at
		FROM devices
		WHERE device_id = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, deviceID)
	var d model.Device
	if err := row.Scan(&d.ID, &d.DeviceID, &d.ReportedVersion, &d.CheckCount, &d.CreatedAt, &d.LastSeenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &d, nil
}

// Touch records a check-in of deviceID reporting reportedVersion as active.
func (r *DeviceRepository) Touch(ctx context.Context, deviceID, reportedVersion string, at time.Time) error {
	const query = `
		INSERT INTO devices (device_id, reported_version, check_count, created_at, last_seen_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			reported_version = excluded.reported_version,
			check_count = check_count + 1,
			last_seen_at = excluded.last_seen_at
	`
	_, err := r.db.ExecContext(ctx, query, deviceID, reportedVersion, at, at)
	return err
}
