/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package metadata defines the signed version metadata document and its
// canonical encodings.
package metadata

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/kentakayama/ota-over-http/internal/domain"
)

// TimestampLayout matches the UTC ISO-8601 form written by the publisher.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const maxVersionLength = 128

// Format selects the wire and on-disk form of a metadata document.
type Format string

const (
	FormatJSON Format = "json"
	FormatCOSE Format = "cose"
)

// FileName is the name of the stored copy of a document in this format.
func (f Format) FileName() string {
	if f == FormatCOSE {
		return "metadata.cose"
	}
	return "metadata.json"
}

// Endpoint is the last path element of the distribution endpoint serving
// documents in this format.
func (f Format) Endpoint() string {
	if f == FormatCOSE {
		return "metadata.cose"
	}
	return "metadata"
}

// VersionMetadata describes one publishable firmware release.
// Field order follows the published document layout.
type VersionMetadata struct {
	Version   string `json:"version" cbor:"version"`
	File      string `json:"file" cbor:"file"`
	SHA256    string `json:"sha256" cbor:"sha256"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	Sequence  uint64 `json:"sequence,omitempty" cbor:"sequence,omitempty"`
	Signature string `json:"signature,omitempty" cbor:"-"`
}

// Fields returns every signed field. Signature is never included and
// Sequence only when set.
func (m *VersionMetadata) Fields() map[string]any {
	f := map[string]any{
		"version":   m.Version,
		"file":      m.File,
		"sha256":    m.SHA256,
		"timestamp": m.Timestamp,
	}
	if m.Sequence != 0 {
		f["sequence"] = m.Sequence
	}
	return f
}

// Canonical returns the signing input of m.
func (m *VersionMetadata) Canonical() ([]byte, error) {
	return EncodeCanonical(m.Fields())
}

// CanonicalCBOR returns the deterministic CBOR form of the signed fields.
func (m *VersionMetadata) CanonicalCBOR() ([]byte, error) {
	return EncodeCanonicalCBOR(m.Fields())
}

// WithSignature returns a copy of m carrying sig.
func (m VersionMetadata) WithSignature(sig string) *VersionMetadata {
	m.Signature = sig
	return &m
}

// MarshalIndent renders the document the way it is published on disk.
func (m *VersionMetadata) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Validate checks the structural requirements of a document. It says nothing
// about authenticity.
func (m *VersionMetadata) Validate() error {
	if err := ValidateVersion(m.Version); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMalformedMetadata, err)
	}
	if m.File == "" {
		return fmt.Errorf("%w: file is empty", domain.ErrMalformedMetadata)
	}
	if len(m.SHA256) != 64 {
		return fmt.Errorf("%w: sha256 must be 64 hex characters", domain.ErrMalformedMetadata)
	}
	if _, err := hex.DecodeString(m.SHA256); err != nil {
		return fmt.Errorf("%w: sha256 is not hex", domain.ErrMalformedMetadata)
	}
	if m.Timestamp == "" {
		return fmt.Errorf("%w: timestamp is empty", domain.ErrMalformedMetadata)
	}
	return nil
}

// Parse decodes a JSON metadata document. Unknown fields are dropped.
func Parse(doc []byte) (*VersionMetadata, error) {
	var m VersionMetadata
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedMetadata, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Timestamp formats t as a metadata timestamp.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ValidateVersion accepts identifiers usable as a single path component.
func ValidateVersion(v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%w: empty", domain.ErrInvalidVersion)
	case len(v) > maxVersionLength:
		return fmt.Errorf("%w: longer than %d bytes", domain.ErrInvalidVersion, maxVersionLength)
	case strings.HasPrefix(v, "."):
		return fmt.Errorf("%w: %q starts with a dot", domain.ErrInvalidVersion, v)
	case strings.ContainsAny(v, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", domain.ErrInvalidVersion, v)
	}
	for _, r := range v {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", domain.ErrInvalidVersion, v)
		}
	}
	return nil
}
