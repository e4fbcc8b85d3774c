// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for gridbus binaries.
//
// Release builds inject values with -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/gridbus/lib/version.Version=1.2.0 \
//	  -X github.com/bureau-foundation/gridbus/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds without ldflags fall back to the VCS stamp the Go toolchain
// records in the binary, so `go install` builds still report a commit.
package version
