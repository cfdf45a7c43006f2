/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package updater

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	target     string
	checkErr   error
	doc        []byte
	fetchErr   error
	downloaded int64
	downErr    error
}

func (s *stubSource) Check(context.Context, string, string) (string, error) {
	return s.target, s.checkErr
}

func (s *stubSource) FetchMetadata(context.Context, string, metadata.Format) ([]byte, error) {
	return s.doc, s.fetchErr
}

func (s *stubSource) Download(context.Context, string, string) (int64, error) {
	return s.downloaded, s.downErr
}

type stubVerifier struct {
	meta     *metadata.VersionMetadata
	err      error
	usedCOSE bool
}

func (v *stubVerifier) VerifyDocument([]byte) (*metadata.VersionMetadata, error) {
	return v.meta, v.err
}

func (v *stubVerifier) VerifyCOSE([]byte) (*metadata.VersionMetadata, error) {
	v.usedCOSE = true
	return v.meta, v.err
}

type stubStore struct {
	commitErr error
	committed []string
}

func (s *stubStore) StagingFile(version string) (string, error) {
	return "staging/" + version + ".part", nil
}

func (s *stubStore) Discard(string) {}

func (s *stubStore) Commit(version string, _ store.Artifact) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = append(s.committed, version)
	return nil
}

type stubActivator struct {
	current     string
	currentErr  error
	activateErr error
}

func (a *stubActivator) Activate(version string) error {
	if a.activateErr != nil {
		return a.activateErr
	}
	a.current = version
	return nil
}

func (a *stubActivator) Current() (string, error) {
	return a.current, a.currentErr
}

type stubs struct {
	source    *stubSource
	verifier  *stubVerifier
	store     *stubStore
	activator *stubActivator
}

func newStubbed(format metadata.Format, st stubs) *Updater {
	if st.source == nil {
		st.source = &stubSource{}
	}
	if st.verifier == nil {
		st.verifier = &stubVerifier{}
	}
	if st.store == nil {
		st.store = &stubStore{}
	}
	if st.activator == nil {
		st.activator = &stubActivator{}
	}
	return New(Config{DeviceID: "dev-stub", Format: format, Logger: zerolog.Nop()},
		st.source, st.verifier, st.store, st.activator, nil)
}

func newRun() *run {
	return &run{id: "run-stub", logger: zerolog.Nop()}
}

func TestCheckTransitions(t *testing.T) {
	cases := []struct {
		name    string
		st      stubs
		want    State
		wantErr error
		target  string
	}{
		{"target equals current", stubs{source: &stubSource{target: "v2"}, activator: &stubActivator{current: "v2"}}, StateDone, nil, ""},
		{"no release published", stubs{source: &stubSource{}, activator: &stubActivator{current: "v1"}}, StateDone, nil, ""},
		{"newer target", stubs{source: &stubSource{target: "v2"}, activator: &stubActivator{current: "v1"}}, StateFetchMetadata, nil, "v2"},
		{"first install", stubs{source: &stubSource{target: "v1"}}, StateFetchMetadata, nil, "v1"},
		{"unreachable server", stubs{source: &stubSource{checkErr: fmt.Errorf("%w: refused", domain.ErrNetwork)}}, StateFailed, domain.ErrNetwork, ""},
		{"target escapes store", stubs{source: &stubSource{target: "../etc"}}, StateFailed, domain.ErrInvalidVersion, ""},
		{"unreadable local state", stubs{activator: &stubActivator{currentErr: domain.ErrIO}}, StateFailed, domain.ErrIO, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := newStubbed(metadata.FormatJSON, tc.st)
			r := newRun()
			next, err := u.check(context.Background(), r)
			assert.Equal(t, tc.want, next)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.target, r.target)
		})
	}
}

func TestVerifySignatureTransitions(t *testing.T) {
	meta := &metadata.VersionMetadata{Version: "v2", SHA256: "ab"}
	cases := []struct {
		name     string
		format   metadata.Format
		verifier *stubVerifier
		want     State
		wantErr  error
	}{
		{"json verified", metadata.FormatJSON, &stubVerifier{meta: meta}, StateDownload, nil},
		{"cose verified", metadata.FormatCOSE, &stubVerifier{meta: meta}, StateDownload, nil},
		{"bad signature", metadata.FormatJSON, &stubVerifier{err: domain.ErrSignatureInvalid}, StateFailed, domain.ErrSignatureInvalid},
		{"metadata for another release", metadata.FormatJSON, &stubVerifier{meta: &metadata.VersionMetadata{Version: "v1"}}, StateFailed, domain.ErrVersionMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := newStubbed(tc.format, stubs{verifier: tc.verifier})
			r := newRun()
			r.target = "v2"
			r.doc = []byte("{}")

			next, err := u.verifySignature(context.Background(), r)
			assert.Equal(t, tc.want, next)
			assert.Equal(t, tc.format == metadata.FormatCOSE, tc.verifier.usedCOSE)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, r.doc)
				assert.Nil(t, r.meta)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, meta, r.meta)
		})
	}
}

func TestDownloadTransitions(t *testing.T) {
	u := newStubbed(metadata.FormatJSON, stubs{source: &stubSource{downloaded: 42}})
	r := newRun()
	r.target = "v2"
	next, err := u.download(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StateVerifyHash, next)
	assert.Equal(t, "staging/v2.part", r.staged)

	u = newStubbed(metadata.FormatJSON, stubs{source: &stubSource{downErr: fmt.Errorf("%w: reset", domain.ErrNetwork)}})
	r = newRun()
	r.target = "v2"
	next, err = u.download(context.Background(), r)
	assert.Equal(t, StateFailed, next)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	// the partial file is left for cleanup to discard
	assert.Equal(t, "staging/v2.part", r.staged)
}

func TestVerifyHashTransitions(t *testing.T) {
	const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	cases := []struct {
		name     string
		expected string
		computed string
		readErr  error
		want     State
		wantErr  error
	}{
		{"match", digest, digest, nil, StateInstall, nil},
		{"match ignores case", "9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08", digest, nil, StateInstall, nil},
		{"mismatch", digest, "00" + digest[2:], nil, StateFailed, domain.ErrHashMismatch},
		{"staged file unreadable", digest, "", domain.ErrIO, StateFailed, domain.ErrIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := newStubbed(metadata.FormatJSON, stubs{})
			u.digest = func(path string) (string, error) {
				assert.Equal(t, "staging/v2.part", path)
				return tc.computed, tc.readErr
			}
			r := newRun()
			r.target = "v2"
			r.staged = "staging/v2.part"
			r.meta = &metadata.VersionMetadata{Version: "v2", SHA256: tc.expected}

			next, err := u.verifyHash(context.Background(), r)
			assert.Equal(t, tc.want, next)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, r.digest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, digest, r.digest)
		})
	}
}

func TestInstallAndActivateTransitions(t *testing.T) {
	st := &stubStore{}
	act := &stubActivator{current: "v1"}
	u := newStubbed(metadata.FormatJSON, stubs{store: st, activator: act})
	r := newRun()
	r.current = "v1"
	r.target = "v2"
	r.staged = "staging/v2.part"

	next, err := u.install(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StateActivate, next)
	assert.Equal(t, []string{"v2"}, st.committed)
	assert.Empty(t, r.staged)

	next, err = u.activate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, StateDone, next)
	assert.True(t, r.updated)
	assert.Equal(t, "v2", act.current)

	failing := newStubbed(metadata.FormatJSON, stubs{
		store:     &stubStore{commitErr: errors.Join(domain.ErrIO, errors.New("disk full"))},
		activator: &stubActivator{activateErr: domain.ErrVersionNotInstalled},
	})
	r = newRun()
	r.target = "v2"
	r.staged = "staging/v2.part"
	next, err = failing.install(context.Background(), r)
	assert.Equal(t, StateFailed, next)
	assert.ErrorIs(t, err, domain.ErrIO)
	assert.Equal(t, "staging/v2.part", r.staged)

	next, err = failing.activate(context.Background(), r)
	assert.Equal(t, StateFailed, next)
	assert.ErrorIs(t, err, domain.ErrVersionNotInstalled)
	assert.False(t, r.updated)
}
