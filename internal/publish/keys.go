/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package publish

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/signing"
	"github.com/kentakayama/ota-over-http/internal/util"
)

const (
	PrivateKeyName = "private.pem"
	PublicKeyName  = "public.pem"
)

// GenerateKeyPair writes a new signing key pair into dir. An existing private
// key is never replaced.
func GenerateKeyPair(dir string, bits int) (privPath, pubPath string, err error) {
	privPath = filepath.Join(dir, PrivateKeyName)
	pubPath = filepath.Join(dir, PublicKeyName)
	if util.Exists(privPath) {
		return "", "", fmt.Errorf("%w: %s already exists", domain.ErrKey, privPath)
	}
	privPEM, pubPEM, err := signing.GenerateKey(bits)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := util.WriteFileAtomic(privPath, privPEM, 0o600); err != nil {
		return "", "", err
	}
	if err := util.WriteFileAtomic(pubPath, pubPEM, 0o644); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}
