/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package store keeps installed firmware versions on disk.
//
// Layout under the root directory:
//
//	state/<version>/firmware.bin
//	state/<version>/firmware.sha256
//	state/<version>/installed_at
//	state/<version>/metadata.json | metadata.cose
//	staging/...
//
// A version directory only appears under state/ through a single rename of a
// fully written and synced staging directory.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/metadata"
	"github.com/kentakayama/ota-over-http/internal/util"
	"github.com/rs/zerolog"
)

const (
	PayloadName     = "firmware.bin"
	DigestName      = "firmware.sha256"
	InstalledAtName = "installed_at"

	StateDir   = "state"
	StagingDir = "staging"

	chunkSize = 64 * 1024
)

type Store struct {
	root    string
	state   string
	staging string
	logger  zerolog.Logger
	now     func() time.Time
}

// Artifact is everything Commit needs to install one version.
type Artifact struct {
	PayloadPath string
	Digest      string
	Metadata    []byte
	Format      metadata.Format
}

type InstalledVersion struct {
	Version      string
	Dir          string
	PayloadPath  string
	MetadataPath string
	Format       metadata.Format
	Digest       string
	InstalledAt  time.Time
}

// Open prepares root for use, creating state/ and staging/ when missing.
func Open(root string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		root:    root,
		state:   filepath.Join(root, StateDir),
		staging: filepath.Join(root, StagingDir),
		logger:  logger.With().Str("component", "store").Logger(),
		now:     time.Now,
	}
	for _, dir := range []string{s.state, s.staging} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
		}
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) StatePath() string { return s.state }

// VersionDir is the final location of version. It does not imply the
// version is installed.
func (s *Store) VersionDir(version string) string {
	return filepath.Join(s.state, version)
}

// Digest streams path through SHA-256 and returns the lowercase hex digest.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrIO, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsInstalled reports whether payload, digest record and metadata copy are all
// present for version. Anything less counts as not installed.
func (s *Store) IsInstalled(version string) bool {
	if metadata.ValidateVersion(version) != nil {
		return false
	}
	dir := s.VersionDir(version)
	if !util.Exists(filepath.Join(dir, PayloadName)) || !util.Exists(filepath.Join(dir, DigestName)) {
		return false
	}
	_, ok := metadataFile(dir)
	return ok
}

func metadataFile(dir string) (metadata.Format, bool) {
	for _, f := range []metadata.Format{metadata.FormatJSON, metadata.FormatCOSE} {
		if util.Exists(filepath.Join(dir, f.FileName())) {
			return f, true
		}
	}
	return "", false
}

// StagingFile reserves a unique, empty file in the staging area for a
// download of version.
func (s *Store) StagingFile(version string) (string, error) {
	if err := metadata.ValidateVersion(version); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.staging, version+"-*.part")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return name, nil
}

// Discard removes a staging artifact. Missing files are not an error.
func (s *Store) Discard(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to discard staged artifact")
	}
}

// Commit installs a verified artifact as version. The payload is moved out of
// its staging location. Committing an already installed version leaves the
// existing directory untouched and discards the payload.
func (s *Store) Commit(version string, a Artifact) error {
	if err := metadata.ValidateVersion(version); err != nil {
		return err
	}
	if a.Format == "" {
		a.Format = metadata.FormatJSON
	}
	if s.IsInstalled(version) {
		s.logger.Info().Str("version", version).Msg("version already installed, keeping existing copy")
		s.Discard(a.PayloadPath)
		return nil
	}

	tmp, err := os.MkdirTemp(s.staging, version+"-*.install")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := s.populate(tmp, a); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	final := s.VersionDir(version)
	if _, err := os.Lstat(final); err == nil {
		aside := filepath.Join(s.staging, fmt.Sprintf("%s-%d.partial", version, s.now().UnixNano()))
		s.logger.Warn().Str("version", version).Str("moved_to", aside).Msg("moving partial version directory aside")
		if err := os.Rename(final, aside); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("%w: move aside %s: %w", domain.ErrIO, final, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		os.RemoveAll(tmp)
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("%w: promote %s: %w", domain.ErrIO, version, err)
	}
	if err := util.SyncDir(s.state); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	s.logger.Info().Str("version", version).Str("dir", final).Msg("version installed")
	return nil
}

func (s *Store) populate(dir string, a Artifact) error {
	payload := filepath.Join(dir, PayloadName)
	if err := moveFile(a.PayloadPath, payload); err != nil {
		return err
	}
	if err := syncFile(payload); err != nil {
		return err
	}
	if err := util.WriteFileSync(filepath.Join(dir, DigestName), []byte(strings.ToLower(a.Digest)+"\n"), 0o644); err != nil {
		return err
	}
	stamp := metadata.Timestamp(s.now()) + "\n"
	if err := util.WriteFileSync(filepath.Join(dir, InstalledAtName), []byte(stamp), 0o644); err != nil {
		return err
	}
	if err := util.WriteFileSync(filepath.Join(dir, a.Format.FileName()), a.Metadata, 0o644); err != nil {
		return err
	}
	return util.SyncDir(dir)
}

// Lookup returns the record of an installed version.
func (s *Store) Lookup(version string) (*InstalledVersion, error) {
	if !s.IsInstalled(version) {
		return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotInstalled, version)
	}
	dir := s.VersionDir(version)
	iv := &InstalledVersion{
		Version:     version,
		Dir:         dir,
		PayloadPath: filepath.Join(dir, PayloadName),
	}
	iv.Format, _ = metadataFile(dir)
	iv.MetadataPath = filepath.Join(dir, iv.Format.FileName())

	digest, err := os.ReadFile(filepath.Join(dir, DigestName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	iv.Digest = strings.TrimSpace(string(digest))

	if stamp, err := os.ReadFile(filepath.Join(dir, InstalledAtName)); err == nil {
		if t, err := time.Parse(metadata.TimestampLayout, strings.TrimSpace(string(stamp))); err == nil {
			iv.InstalledAt = t
		}
	}
	return iv, nil
}

// List returns every installed version ordered by install time.
func (s *Store) List() ([]InstalledVersion, error) {
	entries, err := os.ReadDir(s.state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	var out []InstalledVersion
	for _, e := range entries {
		if !e.IsDir() || !s.IsInstalled(e.Name()) {
			continue
		}
		iv, err := s.Lookup(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, *iv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InstalledAt.Equal(out[j].InstalledAt) {
			return out[i].Version < out[j].Version
		}
		return out[i].InstalledAt.Before(out[j].InstalledAt)
	})
	return out, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, in, make([]byte, chunkSize)); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
