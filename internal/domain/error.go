/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("item not found")

	ErrNetwork             = errors.New("network error")
	ErrHTTP                = errors.New("unexpected http status")
	ErrIO                  = errors.New("i/o error")
	ErrConfig              = errors.New("invalid configuration")
	ErrKey                 = errors.New("key cannot be loaded")
	ErrMissingSignature    = errors.New("metadata missing signature")
	ErrMalformedSignature  = errors.New("malformed signature encoding")
	ErrSignatureInvalid    = errors.New("signature verification failed")
	ErrMalformedMetadata   = errors.New("malformed metadata document")
	ErrHashMismatch        = errors.New("firmware digest mismatch")
	ErrVersionNotInstalled = errors.New("version not installed")
	ErrInvalidVersion      = errors.New("invalid version identifier")
	ErrVersionMismatch     = errors.New("metadata version does not match requested version")
)

// HTTPStatusError carries the status code of a non-2xx response.
// It matches ErrHTTP with errors.Is.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d from %s", e.StatusCode, e.URL)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrHTTP
}

// kinds is ordered: the first sentinel matched by an error names its kind.
var kinds = []struct {
	err  error
	name string
}{
	{ErrMissingSignature, "MissingSignature"},
	{ErrMalformedSignature, "MalformedSignature"},
	{ErrSignatureInvalid, "SignatureInvalid"},
	{ErrMalformedMetadata, "MalformedMetadata"},
	{ErrHashMismatch, "HashMismatch"},
	{ErrVersionNotInstalled, "VersionNotInstalled"},
	{ErrInvalidVersion, "InvalidVersion"},
	{ErrVersionMismatch, "VersionMismatch"},
	{ErrHTTP, "HTTPError"},
	{ErrNetwork, "NetworkError"},
	{ErrIO, "IOError"},
	{ErrKey, "KeyError"},
	{ErrConfig, "ConfigError"},
	{ErrNotFound, "NotFound"},
}

// Kind returns the taxonomy name of err, "" for nil and "Unknown" for errors
// outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}
