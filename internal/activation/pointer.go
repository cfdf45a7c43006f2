/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package activation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kentakayama/ota-over-http/internal/domain"
	"github.com/kentakayama/ota-over-http/internal/util"
)

// Pointer is the single atomically replaceable reference to the active
// version. Read returns "" when no pointer exists.
type Pointer interface {
	Read() (string, error)
	Swap(version string) error
}

const (
	KindSymlink = "symlink"
	KindFile    = "file"

	// PointerName is the pointer's file name inside the store root.
	PointerName = "current"
)

// NewPointer builds the pointer implementation named by kind. The pointer
// lives at root/current and refers into stateDir.
func NewPointer(kind, root, stateDir string) (Pointer, error) {
	path := filepath.Join(root, PointerName)
	switch kind {
	case "", KindSymlink:
		return &SymlinkPointer{Path: path, StateDir: stateDir}, nil
	case KindFile:
		return &FilePointer{Path: path}, nil
	default:
		return nil, fmt.Errorf("%w: unknown pointer kind %q", domain.ErrConfig, kind)
	}
}

// SymlinkPointer keeps the active version as a relative symbolic link
// current -> state/<version>.
type SymlinkPointer struct {
	Path     string
	StateDir string
}

func (p *SymlinkPointer) Read() (string, error) {
	target, err := os.Readlink(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p.Path), target)
	}
	target = filepath.Clean(target)
	if filepath.Dir(target) != filepath.Clean(p.StateDir) {
		// points outside the state directory, not one of ours
		return "", nil
	}
	return filepath.Base(target), nil
}

func (p *SymlinkPointer) Swap(version string) error {
	target, err := filepath.Rel(filepath.Dir(p.Path), filepath.Join(p.StateDir, version))
	if err != nil {
		target = filepath.Join(p.StateDir, version)
	}

	tmp := p.Path + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := removeDir(p.Path); err != nil {
		return err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	if err := util.SyncDir(filepath.Dir(p.Path)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return nil
}

// FilePointer keeps the active version as a one-line record file, for
// filesystems without symbolic links.
type FilePointer struct {
	Path string
}

func (p *FilePointer) Read() (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *FilePointer) Swap(version string) error {
	// records left by an interrupted swap
	stale, _ := filepath.Glob(filepath.Join(filepath.Dir(p.Path), "."+filepath.Base(p.Path)+".tmp-*"))
	for _, name := range stale {
		if err := os.RemoveAll(name); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrIO, err)
		}
	}
	if err := removeDir(p.Path); err != nil {
		return err
	}
	if err := util.WriteFileAtomic(p.Path, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return nil
}

// removeDir clears a directory occupying the pointer path. rename(2) cannot
// replace a directory with a file or link.
func removeDir(path string) error {
	fi, err := os.Lstat(path)
	if err != nil || !fi.IsDir() {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return nil
}
