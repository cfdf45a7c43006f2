/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/domain/model"
)

// ReleaseRepository handles release persistence.
type ReleaseRepository struct {
	db *sql.DB
}

func NewReleaseRepository(db *sql.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

const releaseColumns = `id, version, file, sha256, sequence_number, size, metadata, cose, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRelease(row scanner) (*model.Release, error) {
	var (
		r   model.Release
		seq int64
	)
	if err := row.Scan(&r.ID, &r.Version, &r.File, &r.SHA256, &seq, &r.Size, &r.Metadata, &r.COSE, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Sequence = uint64(seq)
	return &r, nil
}

func (r *ReleaseRepository) FindByVersion(ctx context.Context, version string) (*model.Release, error) {
	const q = `SELECT ` + releaseColumns + ` FROM releases WHERE version = ? LIMIT 1`
	rel, err := scanRelease(r.db.QueryRowContext(ctx, q, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("release scan: %w", err)
	}
	return rel, nil
}

// FindLatest returns the release with the largest sequence_number. Releases
// registered without a sequence are not considered.
func (r *ReleaseRepository) FindLatest(ctx context.Context) (*model.Release, error) {
	const q = `
		SELECT ` + releaseColumns + `
		FROM releases
		WHERE sequence_number > 0
		ORDER BY sequence_number DESC, id DESC
		LIMIT 1
	`
	rel, err := scanRelease(r.db.QueryRowContext(ctx, q))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("release scan: %w", err)
	}
	return rel, nil
}

// List returns every release ordered by sequence_number, then version.
func (r *ReleaseRepository) List(ctx context.Context) ([]*model.Release, error) {
	const q = `SELECT ` + releaseColumns + ` FROM releases ORDER BY sequence_number, version`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("release list: %w", err)
	}
	defer rows.Close()

	var out []*model.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("release scan: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (r *ReleaseRepository) MaxSequence(ctx context.Context) (uint64, error) {
	var maxSeq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sequence_number) FROM releases`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("release max sequence: %w", err)
	}
	if !maxSeq.Valid {
		return 0, nil
	}
	return uint64(maxSeq.Int64), nil
}

// Create inserts rel and returns its id. A release already registered under
// the same version is replaced in place.
func (r *ReleaseRepository) Create(ctx context.Context, rel *model.Release) (int64, error) {
	if rel.Sequence >= math.MaxInt64 {
		return 0, errors.New("sequence-number exceeds the limit")
	}
	const q = `
		INSERT INTO releases (version, file, sha256, sequence_number, size, metadata, cose, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			file = excluded.file,
			sha256 = excluded.sha256,
			sequence_number = excluded.sequence_number,
			size = excluded.size,
			metadata = excluded.metadata,
			cose = excluded.cose,
			created_at = excluded.created_at
	`
	if _, err := r.db.ExecContext(ctx, q, rel.Version, rel.File, rel.SHA256, int64(rel.Sequence), rel.Size, rel.Metadata, rel.COSE, rel.CreatedAt); err != nil {
		return 0, err
	}
	// LastInsertId is unreliable after the update branch of an upsert
	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM releases WHERE version = ?`, rel.Version).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
