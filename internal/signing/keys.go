/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/kentakayama/ota-over-http/internal/domain"
)

// MinKeyBits is the smallest accepted RSA modulus.
const MinKeyBits = 2048

// LoadPrivateKey reads a PEM encoded RSA private key (PKCS#1 or PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrKey, path, err)
	}
	return ParsePrivateKeyPEM(data)
}

func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", domain.ErrKey)
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA private key, got %T", domain.ErrKey, k)
		}
		key = rk
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", domain.ErrKey, block.Type)
	}
	if err := checkSize(&key.PublicKey); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadPublicKey reads a PEM encoded RSA public key (PKIX or PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrKey, path, err)
	}
	return ParsePublicKeyPEM(data)
}

func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", domain.ErrKey)
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
		}
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA public key, got %T", domain.ErrKey, k)
		}
		pub = rk
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
		}
		pub = k
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", domain.ErrKey, block.Type)
	}
	if err := checkSize(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// GenerateKey creates a new RSA key pair and returns both halves PEM encoded.
func GenerateKey(bits int) (privPEM, pubPEM []byte, err error) {
	if bits < MinKeyBits {
		return nil, nil, fmt.Errorf("%w: %d bits is below the %d bit minimum", domain.ErrKey, bits, MinKeyBits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrKey, err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}

func checkSize(pub *rsa.PublicKey) error {
	if bits := pub.N.BitLen(); bits < MinKeyBits {
		return fmt.Errorf("%w: %d bit RSA key is below the %d bit minimum", domain.ErrKey, bits, MinKeyBits)
	}
	return nil
}
