/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

type Device struct {
	ID              int64
	DeviceID        string
	ReportedVersion string
	CheckCount      int64
	CreatedAt       time.Time
	LastSeenAt      time.Time
}
