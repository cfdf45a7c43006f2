/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fetch

import (
	"context"
	"net/url"

	"github.com/kentakayama/ota-over-http/internal/metadata"
)

// Keys of a check answer that may name the offered version, in precedence
// order.
var checkKeys = []string{"target", "latest", "version"}

// Check asks the distribution endpoint which version the device should run.
// It returns "" when the answer names none.
func (c *Client) Check(ctx context.Context, current, deviceID string) (string, error) {
	q := url.Values{}
	q.Set("current", current)
	q.Set("deviceId", deviceID)

	var answer map[string]any
	if err := c.FetchJSON(ctx, c.URL(q, "check"), &answer); err != nil {
		return "", err
	}
	return TargetOf(answer), nil
}

// TargetOf picks the offered version out of a check answer.
func TargetOf(answer map[string]any) string {
	for _, k := range checkKeys {
		if v, ok := answer[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// FetchMetadata downloads the signed metadata of version in the given form.
func (c *Client) FetchMetadata(ctx context.Context, version string, format metadata.Format) ([]byte, error) {
	return c.FetchBytes(ctx, c.URL(nil, "versions", version, format.Endpoint()))
}

// Download streams the firmware of version into dest.
func (c *Client) Download(ctx context.Context, version, dest string) (int64, error) {
	return c.FetchToFile(ctx, c.URL(nil, "versions", version, "download"), dest)
}
