// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable dual-domain time source used by
// agents and their schedulers.
//
// Every agent keeps two timer queues: one driven by a monotonic clock
// for intervals and timeouts, and one driven by the wall clock for
// calendar events. The [Clock] interface exposes both readings so that
// a single injected value drives both queues.
//
// In production, Real() reads the time package. In tests, Fake()
// returns a [FakeClock] that moves only when told to:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	a, _ := agent.New(agent.Config{Clock: c, ...})
//	c.Advance(time.Second) // both domains move; due timers fire on the next Step
//	c.Jump(-time.Hour)     // wall clock only; monotonic timers are unaffected
package clock
