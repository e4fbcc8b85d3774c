// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reactor multiplexes readiness across file-descriptor-backed
// sources with poll(2).
//
// A Reactor holds one registration per source, each with an optional
// incoming and outgoing callback. Poll builds the descriptor table from
// the current registrations, waits, and returns one Event per ready
// (source, direction) pair; a source ready both ways yields two. The
// caller decides when to fire the events, so a single goroutine can
// interleave readiness with timers.
//
// Sources that buffer input internally implement Pender. A source whose
// Pending method reports true is returned as incoming-ready without
// waiting, because poll(2) cannot see bytes already read off the
// descriptor.
//
// A Reactor is not safe for concurrent use. It belongs to the goroutine
// that polls it.
package reactor
