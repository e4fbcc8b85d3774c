// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Real returns a Clock backed by the standard time package. Monotonic
// readings are derived from time.Since on a reading taken at
// construction, which uses the runtime's monotonic clock.
func Real() Clock { return &realClock{start: time.Now()} }

type realClock struct {
	start time.Time
}

func (c *realClock) Now() time.Time { return time.Now() }

func (c *realClock) Monotonic() time.Time {
	return monotonicBase.Add(time.Since(c.start))
}

func (c *realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *realClock) Sleep(d time.Duration) { time.Sleep(d) }
