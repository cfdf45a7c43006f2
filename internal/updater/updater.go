/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package updater drives one update of the device from check to activation.
//
//	CHECK -> FETCH_METADATA -> VERIFY_SIGNATURE -> DOWNLOAD -> VERIFY_HASH
//	      -> INSTALL -> ACTIVATE -> DONE
//
// Any handler error moves the run to FAILED. Nothing is retried; the next
// invocation starts over from CHECK.
package updater

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/fetch"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/metrics"
	"github.com/kentakayama/ota-over-http/internal/store"
	"github.com/rs/zerolog"
)

// Source is the distribution endpoint.
type Source interface {
	Check(ctx context.Context, current, deviceID string) (string, error)
	FetchMetadata(ctx context.Context, version string, format metadata.Format) ([]byte, error)
	Download(ctx context.Context, version, dest string) (int64, error)
}

// Verifier authenticates metadata documents against the trust anchor.
type Verifier interface {
	VerifyDocument(doc []byte) (*metadata.VersionMetadata, error)
	VerifyCOSE(envelope []byte) (*metadata.VersionMetadata, error)
}

type Store interface {
	StagingFile(version string) (string, error)
	Discard(path string)
	Commit(version string, a store.Artifact) error
}

type Activator interface {
	Activate(version string) error
	Current() (string, error)
}

type Config struct {
	DeviceID string
	Format   metadata.Format
	Logger   zerolog.Logger
}

type Updater struct {
	deviceID  string
	format    metadata.Format
	source    Source
	verifier  Verifier
	store     Store
	activator Activator
	metrics   metrics.UpdaterMetrics
	logger    zerolog.Logger
	handlers  map[State]handler
	digest    func(path string) (string, error)
	now       func() time.Time
	newRunID  func() string
}

type handler func(ctx context.Context, r *run) (State, error)

// run is the working state of one invocation.
type run struct {
	id      string
	logger  zerolog.Logger
	current string
	target  string
	doc     []byte
	meta    *metadata.VersionMetadata
	staged  string
	digest  string
	updated bool
}

func New(cfg Config, source Source, verifier Verifier, st Store, activator Activator, m metrics.UpdaterMetrics) *Updater {
	if cfg.Format == "" {
		cfg.Format = metadata.FormatJSON
	}
	if m == nil {
		m = metrics.NoopUpdater{}
	}
	u := &Updater{
		deviceID:  cfg.DeviceID,
		format:    cfg.Format,
		source:    source,
		verifier:  verifier,
		store:     st,
		activator: activator,
		metrics:   m,
		logger:    cfg.Logger.With().Str("component", "updater").Logger(),
		digest:    store.Digest,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	u.handlers = map[State]handler{
		StateCheck:           u.check,
		StateFetchMetadata:   u.fetchMetadata,
		StateVerifySignature: u.verifySignature,
		StateDownload:        u.download,
		StateVerifyHash:      u.verifyHash,
		StateInstall:         u.install,
		StateActivate:        u.activate,
	}
	return u
}

// Run executes one invocation of the pipeline to completion.
func (u *Updater) Run(ctx context.Context) Result {
	start := u.now()
	r := &run{id: u.newRunID()}
	r.logger = u.logger.With().Str("run_id", r.id).Logger()
	ctx = fetch.WithRequestID(ctx, r.id)

	state := StateCheck
	res := Result{RunID: r.id}
	for !state.Terminal() {
		r.logger.Debug().Str("state", state.String()).Msg("entering state")
		next, err := u.handlers[state](ctx, r)
		if err != nil {
			res.FailedAt = state
			res.Err = &StageError{State: state, Err: err}
			u.cleanup(r)
			r.logger.Error().
				Err(err).
				Str("state", state.String()).
				Str("kind", domain.Kind(err)).
				Str("target", r.target).
				Msg("update failed")
			state = StateFailed
			break
		}
		state = next
	}

	res.State = state
	res.Current = r.current
	res.Target = r.target
	res.Updated = r.updated
	u.record(res, start)
	return res
}

func (u *Updater) cleanup(r *run) {
	if r.staged != "" {
		u.store.Discard(r.staged)
		r.staged = ""
	}
}

func (u *Updater) record(res Result, start time.Time) {
	elapsed := u.now().Sub(start)
	switch {
	case res.State == StateFailed:
		u.metrics.ObserveRun("failed", res.FailedAt.String(), elapsed)
		return
	case res.Updated:
		u.metrics.ObserveRun("updated", StateDone.String(), elapsed)
	default:
		u.metrics.ObserveRun("up_to_date", StateDone.String(), elapsed)
	}
	u.metrics.SetLastSuccess(u.now())
}
