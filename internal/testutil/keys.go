/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var (
	keyOnce [2]sync.Once
	keys    [2]*rsa.PrivateKey
	keyErrs [2]error
)

func cachedKey(t testing.TB, i int) *rsa.PrivateKey {
	t.Helper()
	keyOnce[i].Do(func() {
		keys[i], keyErrs[i] = rsa.GenerateKey(rand.Reader, 2048)
	})
	if keyErrs[i] != nil {
		t.Fatalf("generate RSA key: %v", keyErrs[i])
	}
	return keys[i]
}

// TrustedKey returns the publisher key used across tests.
func TrustedKey(t testing.TB) *rsa.PrivateKey { return cachedKey(t, 0) }

// OtherKey returns a second key that no test device trusts.
func OtherKey(t testing.TB) *rsa.PrivateKey { return cachedKey(t, 1) }

// WriteKeyPair stores key as private.pem (PKCS#8) and public.pem (PKIX) in dir.
func WriteKeyPair(t testing.TB, dir string, key *rsa.PrivateKey) (privPath, pubPath string) {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")
	WriteFile(t, privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	WriteFile(t, pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPath, pubPath
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
