/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/coreos/go-semver/semver"
)

var legacyVersion = regexp.MustCompile(`^v(\d+)$`)

// CompareVersions orders release ids that carry no sequence number.
// Semantic versions (optionally prefixed with "v") compare by precedence,
// legacy "v<N>" ids numerically, and anything else lexically.
func CompareVersions(a, b string) int {
	sa, errA := semver.NewVersion(strings.TrimPrefix(a, "v"))
	sb, errB := semver.NewVersion(strings.TrimPrefix(b, "v"))
	if errA == nil && errB == nil {
		return sa.Compare(*sb)
	}

	na, okA := legacyNumber(a)
	nb, okB := legacyNumber(b)
	if okA && okB {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func legacyNumber(v string) (uint64, bool) {
	m := legacyVersion.FindStringSubmatch(v)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	return n, err == nil
}

// Latest picks the newest release. Sequence numbers win; releases without
// one are only ordered among themselves by CompareVersions.
func Latest(releases []*Release) *Release {
	var best *Release
	for _, r := range releases {
		if best == nil || newer(r, best) {
			best = r
		}
	}
	return best
}

func newer(a, b *Release) bool {
	if a.Sequence != b.Sequence {
		return a.Sequence > b.Sequence
	}
	return CompareVersions(a.Version, b.Version) > 0
}

// Sort orders releases oldest first, consistent with Latest.
func Sort(releases []*Release) {
	slices.SortStableFunc(releases, func(a, b *Release) int {
		switch {
		case newer(a, b):
			return 1
		case newer(b, a):
			return -1
		}
		return 0
	})
}
