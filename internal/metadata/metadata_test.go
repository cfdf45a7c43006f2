/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package metadata

import (
	"strings"
	"testing"
	"time"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_OK(t *testing.T) {
	doc := `{
  "version": "v2",
  "file": "firmware.txt",
  "sha256": "` + strings.ToUpper(testDigest) + `",
  "timestamp": "2025-05-01T10:00:00.123456Z",
  "signature": "c2ln",
  "comment": "ignored"
}`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Version)
	assert.Equal(t, "firmware.txt", m.File)
	assert.Equal(t, "c2ln", m.Signature)
	assert.Zero(t, m.Sequence)
}

func TestParse_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `<html>`},
		{name: "missing version", doc: `{"file":"f","sha256":"` + testDigest + `","timestamp":"t"}`},
		{name: "short digest", doc: `{"version":"v1","file":"f","sha256":"abcd","timestamp":"t"}`},
		{name: "non hex digest", doc: `{"version":"v1","file":"f","sha256":"` + strings.Repeat("z", 64) + `","timestamp":"t"}`},
		{name: "traversal version", doc: `{"version":"../v1","file":"f","sha256":"` + testDigest + `","timestamp":"t"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.ErrorIs(t, err, domain.ErrMalformedMetadata)
		})
	}
}

func TestMarshalIndent_FieldOrder(t *testing.T) {
	m := &VersionMetadata{Version: "v1", File: "firmware.txt", SHA256: testDigest, Timestamp: "t", Signature: "sig"}
	b, err := m.MarshalIndent()
	require.NoError(t, err)
	s := string(b)
	assert.Less(t, strings.Index(s, `"version"`), strings.Index(s, `"file"`))
	assert.Less(t, strings.Index(s, `"timestamp"`), strings.Index(s, `"signature"`))
	assert.NotContains(t, s, "sequence")

	back, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, *m, *back)
}

func TestValidateVersion(t *testing.T) {
	for _, ok := range []string{"v1", "v2", "1.2.3", "release-2025_05"} {
		assert.NoError(t, ValidateVersion(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", ".hidden", "a/b", `a\b`, "v1\x00", strings.Repeat("v", 129)} {
		assert.ErrorIs(t, ValidateVersion(bad), domain.ErrInvalidVersion, bad)
	}
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 30, 0, 123456000, time.FixedZone("JST", 9*3600))
	assert.Equal(t, "2025-05-01T03:30:00.123456Z", Timestamp(ts))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "metadata.json", FormatJSON.FileName())
	assert.Equal(t, "metadata.cose", FormatCOSE.FileName())
	assert.Equal(t, "metadata", FormatJSON.Endpoint())
	assert.Equal(t, "metadata.cose", FormatCOSE.Endpoint())
}
