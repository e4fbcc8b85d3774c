// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock whose wall clock starts at initial. Time
// stands still until Advance or Jump is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{
		wall:      initial,
		monotonic: monotonicBase,
	}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for testing. Advance moves both
// domains forward together; Jump steps only the wall clock, the way an
// NTP correction would.
type FakeClock struct {
	mu             sync.Mutex
	wall           time.Time
	monotonic      time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

// fakeWaiter is a pending After or Sleep. Deadlines are monotonic so a
// wall-clock Jump never releases a sleeper early.
type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// Now returns the current fake wall time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// Monotonic returns the current fake monotonic reading.
func (c *FakeClock) Monotonic() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monotonic
}

// After returns a channel that receives once the clock has been
// advanced by d. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.wall
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{
		deadline: c.monotonic.Add(d),
		channel:  channel,
	})
	c.waitersChanged.Broadcast()
	return channel
}

// Sleep blocks until the clock is advanced past d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves both the wall and monotonic clocks forward by d and
// releases every waiter whose deadline has been reached, in deadline
// order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.wall = c.wall.Add(d)
	c.monotonic = c.monotonic.Add(d)
	wall := c.wall

	var due, remaining []*fakeWaiter
	for _, waiter := range c.waiters {
		if waiter.deadline.After(c.monotonic) {
			remaining = append(remaining, waiter)
		} else {
			due = append(due, waiter)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, waiter := range due {
		waiter.channel <- wall
	}
}

// Jump steps the wall clock by d (which may be negative) without
// touching the monotonic clock or releasing any waiter.
func (c *FakeClock) Jump(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = c.wall.Add(d)
}

// WaitForTimers blocks until at least n After or Sleep calls are
// pending. Use it to order a goroutine's timer registration before
// the test's Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.waitersChanged.Wait()
	}
}

// PendingCount returns the number of pending After or Sleep calls.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
