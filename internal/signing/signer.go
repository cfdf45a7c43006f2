/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package signing produces and authenticates signed version metadata.
//
// Signatures are RSA-PSS (MGF1 with SHA-256, maximum salt length) over the
// SHA-256 digest of the canonical metadata encoding, transported as base64.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
)

// Sign side uses the longest salt the key allows; verify side detects it.
var (
	signOptions   = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
	verifyOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
)

// Signer signs metadata on behalf of the publisher.
type Signer struct {
	key *rsa.PrivateKey
}

func NewSigner(key *rsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.Join(domain.ErrKey, errors.New("private key is nil"))
	}
	if err := checkSize(&key.PublicKey); err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// LoadSigner reads the publisher key from a PEM file.
func LoadSigner(path string) (*Signer, error) {
	key, err := LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	return NewSigner(key)
}

func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Sign returns the base64 signature over the canonical encoding of m.
// Any signature already present on m is ignored.
func (s *Signer) Sign(m *metadata.VersionMetadata) (string, error) {
	msg, err := m.Canonical()
	if err != nil {
		return "", fmt.Errorf("canonical encoding: %w", err)
	}
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], signOptions)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrKey, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignMetadata returns a signed copy of m.
func (s *Signer) SignMetadata(m *metadata.VersionMetadata) (*metadata.VersionMetadata, error) {
	sig, err := s.Sign(m)
	if err != nil {
		return nil, err
	}
	return m.WithSignature(sig), nil
}
