// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for gridbus packages.
//
// [SocketDir] creates a short directory in /tmp for Unix domain
// sockets. sun_path is limited to 108 bytes, and t.TempDir() paths
// under nested test runners routinely exceed it. The directory is
// removed when the test completes.
//
// [RequireReceive], [RequireSend], [RequireClosed] and
// [RequireEventually] wrap the timeout safety valve so individual tests
// never call time.After directly. They are the only place tests use
// real wall-clock timeouts; everything else runs on lib/clock's
// FakeClock.
//
// [UniqueID] generates monotonically increasing identifiers for
// topics and message bodies that must not collide between parallel
// tests sharing an exchange.
//
// All helpers call t.Fatalf on failure. This package has no gridbus
// dependencies so that any package's tests may import it.
package testutil
