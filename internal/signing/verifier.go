/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package signing

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
)

// Verifier authenticates metadata against the trust anchor.
// It keeps no state besides the key and never logs.
type Verifier struct {
	key *rsa.PublicKey
}

func NewVerifier(pub *rsa.PublicKey) (*Verifier, error) {
	if pub == nil {
		return nil, errors.Join(domain.ErrKey, errors.New("public key is nil"))
	}
	if err := checkSize(pub); err != nil {
		return nil, err
	}
	return &Verifier{key: pub}, nil
}

// LoadVerifier reads the trust anchor from a PEM file.
func LoadVerifier(path string) (*Verifier, error) {
	pub, err := LoadPublicKey(path)
	if err != nil {
		return nil, err
	}
	return NewVerifier(pub)
}

// Verify checks the signature carried by m.
func (v *Verifier) Verify(m *metadata.VersionMetadata) error {
	if m.Signature == "" {
		return domain.ErrMissingSignature
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMalformedSignature, err)
	}
	msg, err := m.Canonical()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSignatureInvalid, err)
	}
	digest := sha256.Sum256(msg)
	if err := rsa.VerifyPSS(v.key, crypto.SHA256, digest[:], sig, verifyOptions); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSignatureInvalid, err)
	}
	return nil
}

// VerifyDocument parses a JSON metadata document and verifies it.
func (v *Verifier) VerifyDocument(doc []byte) (*metadata.VersionMetadata, error) {
	m, err := metadata.Parse(doc)
	if err != nil {
		return nil, err
	}
	if err := v.Verify(m); err != nil {
		return nil, err
	}
	return m, nil
}
