/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package signing

import (
	"crypto/rand"
	"fmt"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/veraison/go-cose"
)

// COSEContentType is carried in the protected header of metadata envelopes.
const COSEContentType = "application/ota-metadata+cbor"

// SignCOSE wraps the deterministic CBOR form of m in a COSE_Sign1 (PS256)
// envelope. The JSON signature field of m is not part of the payload.
func (s *Signer) SignCOSE(m *metadata.VersionMetadata) ([]byte, error) {
	payload, err := m.CanonicalCBOR()
	if err != nil {
		return nil, fmt.Errorf("canonical cbor: %w", err)
	}
	signer, err := cose.NewSigner(cose.AlgorithmPS256, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
	}
	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm:   cose.AlgorithmPS256,
			cose.HeaderLabelContentType: COSEContentType,
		},
	}
	return cose.Sign1(rand.Reader, signer, headers, payload, nil)
}

// VerifyCOSE authenticates a metadata envelope and returns its content.
func (v *Verifier) VerifyCOSE(envelope []byte) (*metadata.VersionMetadata, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedSignature, err)
	}
	if len(msg.Signature) == 0 {
		return nil, domain.ErrMissingSignature
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmPS256, v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSignatureInvalid, err)
	}

	m, err := metadata.DecodeCBOR(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedMetadata, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
