/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// Release is a published firmware version as indexed by the registry.
type Release struct {
	ID       int64
	Version  string
	File     string
	SHA256   string
	Sequence uint64
	Size     int64
	// Metadata is the signed JSON document as published.
	Metadata []byte
	// COSE is the signed envelope, nil when none was published.
	COSE      []byte
	CreatedAt time.Time
}
