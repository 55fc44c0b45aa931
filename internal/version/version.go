// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package version reports the build version of chatbridge.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// describe is the output of `git describe --tags --long`, set at link time with
// -ldflags "-X github.com/chatbridge/chatbridge/internal/version.describe=...".
var describe string

// Build is the version information of the running binary.
type Build struct {
	Tag          string
	CommitsAhead int
	Commit       string
}

// Current returns the Build of the running binary. It is the zero Build for
// binaries built without the release tooling.
func Current() Build { return parseDescribe(describe) }

// String returns the tag of a release build, the commit with its distance to the
// closest tag otherwise, and "dev" for local builds.
func (b Build) String() string {
	switch {
	case b == Build{}:
		return "dev"
	case b.CommitsAhead > 0:
		return fmt.Sprintf("%s (%s, +%d)", b.Commit, b.Tag, b.CommitsAhead)
	default:
		return b.Tag
	}
}

// String is shorthand for Current().String().
func String() string { return Current().String() }

// parseDescribe parses "<tag>-<commits>-g<sha>". Tags may contain dashes.
func parseDescribe(v string) Build {
	sha := strings.LastIndexByte(v, '-')
	if sha <= 0 || !strings.HasPrefix(v[sha+1:], "g") {
		return Build{}
	}
	commits := strings.LastIndexByte(v[:sha], '-')
	if commits <= 0 {
		return Build{}
	}
	n, err := strconv.Atoi(v[commits+1 : sha])
	if err != nil || n < 0 {
		return Build{}
	}
	return Build{Tag: v[:commits], CommitsAhead: n, Commit: v[sha+2:]}
}
