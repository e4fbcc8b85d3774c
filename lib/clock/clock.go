// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the two time domains an agent runs on. Production
// code injects Real(); tests inject Fake() and move time explicitly.
//
// Interval and timeout logic reads Monotonic so that wall-clock steps
// (NTP corrections, an operator setting the date) cannot stretch or
// shrink a period. Calendar scheduling reads Now so that an event set
// for 06:00 fires at 06:00 local reality even after such a step.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// Monotonic returns the current reading of a clock that never
	// moves backward and is unaffected by wall-clock adjustments.
	// Only differences between readings are meaningful; the absolute
	// value is arbitrary.
	Monotonic() time.Time

	// After returns a channel that receives the current wall time
	// after duration d elapses. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// monotonicBase anchors monotonic readings. Readings are expressed as
// offsets from this fixed instant so that values from Real and Fake
// clocks print alike in logs.
var monotonicBase = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
