/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package updater

import (
	"context"
	"fmt"
	"strings"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/store"
)

func (u *Updater) check(ctx context.Context, r *run) (State, error) {
	current, err := u.activator.Current()
	if err != nil {
		return StateFailed, err
	}
	r.current = current

	target, err := u.source.Check(ctx, current, u.deviceID)
	if err != nil {
		return StateFailed, err
	}
	if target == "" || target == current {
		r.logger.Info().Str("current", current).Msg("already up to date")
		return StateDone, nil
	}
	if err := metadata.ValidateVersion(target); err != nil {
		return StateFailed, err
	}
	r.target = target
	r.logger.Info().Str("current", current).Str("target", target).Msg("update available")
	return StateFetchMetadata, nil
}

func (u *Updater) fetchMetadata(ctx context.Context, r *run) (State, error) {
	doc, err := u.source.FetchMetadata(ctx, r.target, u.format)
	if err != nil {
		return StateFailed, err
	}
	r.doc = doc
	return StateVerifySignature, nil
}

func (u *Updater) verifySignature(_ context.Context, r *run) (State, error) {
	var (
		meta *metadata.VersionMetadata
		err  error
	)
	if u.format == metadata.FormatCOSE {
		meta, err = u.verifier.VerifyCOSE(r.doc)
	} else {
		meta, err = u.verifier.VerifyDocument(r.doc)
	}
	if err != nil {
		r.doc = nil
		return StateFailed, err
	}
	if meta.Version != r.target {
		r.doc = nil
		return StateFailed, fmt.Errorf("%w: requested %q, metadata is for %q", domain.ErrVersionMismatch, r.target, meta.Version)
	}
	r.meta = meta
	r.logger.Info().Str("version", meta.Version).Str("sha256", meta.SHA256).Msg("metadata signature verified")
	return StateDownload, nil
}

func (u *Updater) download(ctx context.Context, r *run) (State, error) {
	staged, err := u.store.StagingFile(r.target)
	if err != nil {
		return StateFailed, err
	}
	r.staged = staged

	n, err := u.source.Download(ctx, r.target, staged)
	u.metrics.AddDownloadedBytes(n)
	if err != nil {
		return StateFailed, err
	}
	r.logger.Info().Str("version", r.target).Int64("bytes", n).Msg("firmware downloaded")
	return StateVerifyHash, nil
}

func (u *Updater) verifyHash(_ context.Context, r *run) (State, error) {
	digest, err := u.digest(r.staged)
	if err != nil {
		return StateFailed, err
	}
	if !strings.EqualFold(digest, r.meta.SHA256) {
		return StateFailed, fmt.Errorf("%w: expected %s, got %s", domain.ErrHashMismatch, strings.ToLower(r.meta.SHA256), digest)
	}
	r.digest = digest
	return StateInstall, nil
}

func (u *Updater) install(_ context.Context, r *run) (State, error) {
	err := u.store.Commit(r.target, store.Artifact{
		PayloadPath: r.staged,
		Digest:      r.digest,
		Metadata:    r.doc,
		Format:      u.format,
	})
	if err != nil {
		return StateFailed, err
	}
	// the payload now lives in the version directory
	r.staged = ""
	return StateActivate, nil
}

func (u *Updater) activate(_ context.Context, r *run) (State, error) {
	if err := u.activator.Activate(r.target); err != nil {
		return StateFailed, err
	}
	r.updated = true
	r.logger.Info().Str("previous", r.current).Str("version", r.target).Msg("update activated")
	return StateDone, nil
}
