// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sched

import (
	"container/heap"
	"time"
)

// Func is a timer callback. An error stops the current execute pass and
// is returned from [Queue.Execute].
type Func func() error

// NextFunc computes the deadline that follows previous. Returning false
// ends the event's recurrence.
type NextFunc func(previous time.Time) (time.Time, bool)

// Event is a handle to a scheduled callback. It is owned by the queue
// it was scheduled on until it fires for the last time or is cancelled.
type Event struct {
	deadline  time.Time
	fn        Func
	next      NextFunc
	cancelled bool
	sequence  uint64
	index     int
}

// Cancel marks the event inert. A cancelled event is dropped when its
// deadline is reached; cancelling cannot interrupt a callback that is
// already running. Cancel is idempotent and safe on a nil Event.
func (e *Event) Cancel() {
	if e != nil {
		e.cancelled = true
	}
}

// Cancelled reports whether Cancel has been called.
func (e *Event) Cancelled() bool { return e.cancelled }

// Deadline returns the instant the event is next due.
func (e *Event) Deadline() time.Time { return e.deadline }

// Queue is a deadline-ordered priority queue of events. Ties are broken
// by scheduling order. The zero value is an empty queue ready for use.
type Queue struct {
	events   eventHeap
	sequence uint64
}

// Schedule queues fn to run once at deadline.
func (q *Queue) Schedule(deadline time.Time, fn Func) *Event {
	return q.ScheduleFunc(deadline, fn, nil)
}

// ScheduleRecurring queues fn to run at deadline and every period
// thereafter, anchored to deadline. period must be positive.
func (q *Queue) ScheduleRecurring(deadline time.Time, period time.Duration, fn Func) *Event {
	if period <= 0 {
		panic("sched: non-positive period for ScheduleRecurring")
	}
	return q.ScheduleFunc(deadline, fn, func(previous time.Time) (time.Time, bool) {
		return previous.Add(period), true
	})
}

// ScheduleFunc queues fn at deadline. After each firing, next (if not
// nil) is asked for the following deadline.
func (q *Queue) ScheduleFunc(deadline time.Time, fn Func, next NextFunc) *Event {
	event := &Event{deadline: deadline, fn: fn, next: next}
	q.push(event)
	return event
}

func (q *Queue) push(event *Event) {
	q.sequence++
	event.sequence = q.sequence
	heap.Push(&q.events, event)
}

// Len returns the number of queued events, including cancelled events
// that have not yet been reached.
func (q *Queue) Len() int { return len(q.events) }

// Execute runs every event whose deadline is at or before now, in
// deadline order. Recurring events are rearmed before their callback
// runs, so a callback may cancel its own event. The first callback
// error ends the pass; events not yet reached stay queued.
func (q *Queue) Execute(now time.Time) error {
	for len(q.events) > 0 {
		event := q.events[0]
		if event.deadline.After(now) {
			return nil
		}
		heap.Pop(&q.events)
		if event.cancelled {
			continue
		}
		if event.next != nil {
			if following, ok := event.next(event.deadline); ok {
				event.deadline = following
				q.push(event)
			}
		}
		if err := event.fn(); err != nil {
			return err
		}
	}
	return nil
}

// Delay returns how long after now the earliest event is due, clipped
// at zero, or false if the queue is empty. Cancelled events at the head
// of the queue are discarded first so they do not cause early wakeups.
func (q *Queue) Delay(now time.Time) (time.Duration, bool) {
	for len(q.events) > 0 && q.events[0].cancelled {
		heap.Pop(&q.events)
	}
	if len(q.events) == 0 {
		return 0, false
	}
	delay := q.events[0].deadline.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// eventHeap implements heap.Interface ordered by (deadline, sequence).
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].sequence < h[j].sequence
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	event := x.(*Event)
	event.index = len(*h)
	*h = append(*h, event)
}

func (h *eventHeap) Pop() any {
	old := *h
	last := len(old) - 1
	event := old[last]
	old[last] = nil
	event.index = -1
	*h = old[:last]
	return event
}
