/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package updater

import (
	"fmt"
)

type State int

const (
	StateCheck State = iota
	StateFetchMetadata
	StateVerifySignature
	StateDownload
	StateVerifyHash
	StateInstall
	StateActivate
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateCheck:           "CHECK",
	StateFetchMetadata:   "FETCH_METADATA",
	StateVerifySignature: "VERIFY_SIGNATURE",
	StateDownload:        "DOWNLOAD",
	StateVerifyHash:      "VERIFY_HASH",
	StateInstall:         "INSTALL",
	StateActivate:        "ACTIVATE",
	StateDone:            "DONE",
	StateFailed:          "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StageError reports the state in which a run failed. Its cause matches one
// taxonomy kind with errors.Is.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result summarises one invocation.
type Result struct {
	RunID string
	// State is DONE or FAILED.
	State State
	// FailedAt is the state whose handler failed; only meaningful when
	// State is FAILED.
	FailedAt State
	Current  string
	Target   string
	// Updated is set when the run switched the active version.
	Updated bool
	Err     error
}

func (r Result) OK() bool {
	return r.State == StateDone
}
