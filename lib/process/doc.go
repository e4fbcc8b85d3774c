// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helper shared by the gridbus
// binaries. Each main calls run() and hands any error to [Fatal],
// which reports it on stderr before the structured logger exists (or
// after it is gone) and picks the exit status.
package process
