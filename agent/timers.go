// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/gridbus/lib/cron"
	"github.com/bureau-foundation/gridbus/lib/sched"
)

// Timer runs fn once after delay on the monotonic clock.
func (a *Agent) Timer(delay time.Duration, fn func() error) *sched.Event {
	return a.monotonic.Schedule(a.clock.Monotonic().Add(delay), a.guard(fn))
}

// PeriodicTimer runs fn every period on the monotonic clock, starting
// one period from now. Firings are anchored to the schedule, so a slow
// fn does not push later firings back. Panics if period is not
// positive.
func (a *Agent) PeriodicTimer(period time.Duration, fn func() error) *sched.Event {
	return a.monotonic.ScheduleRecurring(a.clock.Monotonic().Add(period), period, a.guard(fn))
}

// Schedule runs fn once at the wall-clock time at.
func (a *Agent) Schedule(at time.Time, fn func() error) *sched.Event {
	return a.wall.Schedule(at, a.guard(fn))
}

// ScheduleCron runs fn at every wall-clock time matching schedule.
func (a *Agent) ScheduleCron(schedule cron.Schedule, fn func() error) (*sched.Event, error) {
	first, err := schedule.Next(a.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	next := func(previous time.Time) (time.Time, bool) {
		following, err := schedule.Next(previous)
		if err != nil {
			a.logger.Warn("cron schedule exhausted", "after", previous, "error", err)
			return time.Time{}, false
		}
		return following, true
	}
	return a.wall.ScheduleFunc(first, a.guard(fn), next), nil
}

// PendingTimers returns the number of queued monotonic and wall events,
// cancelled ones included until they are reached.
func (a *Agent) PendingTimers() (monotonic, wall int) {
	return a.monotonic.Len(), a.wall.Len()
}

// guard recovers panics from fn under the Continue policy.
func (a *Agent) guard(fn func() error) sched.Func {
	if fn == nil {
		panic("agent: timer with nil func")
	}
	return func() (err error) {
		if a.config.ErrorPolicy == Continue {
			defer func() {
				if recovered := recover(); recovered != nil {
					err = panicError(recovered)
				}
			}()
		}
		return fn()
	}
}
