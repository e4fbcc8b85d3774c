// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockAdvanceMovesBothDomains(t *testing.T) {
	t.Parallel()
	clock := Fake(epoch)
	startMonotonic := clock.Monotonic()

	clock.Advance(5 * time.Second)

	if got := clock.Now(); !got.Equal(epoch.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(5*time.Second))
	}
	if got := clock.Monotonic().Sub(startMonotonic); got != 5*time.Second {
		t.Errorf("monotonic elapsed = %v, want 5s", got)
	}
}

func TestFakeClockJumpMovesWallOnly(t *testing.T) {
	t.Parallel()
	clock := Fake(epoch)
	startMonotonic := clock.Monotonic()

	clock.Jump(-time.Hour)

	if got := clock.Now(); !got.Equal(epoch.Add(-time.Hour)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(-time.Hour))
	}
	if got := clock.Monotonic(); !got.Equal(startMonotonic) {
		t.Errorf("Monotonic moved on Jump: %v -> %v", startMonotonic, got)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeClockAfterIgnoresJump(t *testing.T) {
	t.Parallel()
	clock := Fake(epoch)
	channel := clock.After(time.Second)

	clock.Jump(time.Hour)
	select {
	case <-channel:
		t.Fatal("wall-clock Jump released a monotonic waiter")
	default:
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	t.Parallel()
	clock := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(d):
		default:
			t.Fatalf("After(%v) should fire immediately", d)
		}
	}
}

func TestFakeClockSleepWithWaitForTimers(t *testing.T) {
	t.Parallel()
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		clock.Sleep(10 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	if clock.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", clock.PendingCount())
	}
	clock.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestRealClockMonotonicNeverDecreases(t *testing.T) {
	t.Parallel()
	clock := Real()
	previous := clock.Monotonic()
	for range 1000 {
		current := clock.Monotonic()
		if current.Before(previous) {
			t.Fatalf("monotonic reading went backward: %v -> %v", previous, current)
		}
		previous = current
	}
}
