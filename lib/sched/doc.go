// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sched implements the deadline-ordered timer queue that backs
// an agent's timers.
//
// A [Queue] does not read any clock: callers pass "now" to
// [Queue.Execute] and [Queue.Delay]. That keeps one implementation
// usable for both of an agent's time domains. The agent owns one queue
// fed with monotonic readings (intervals, timeouts, periodic timers) and
// one fed with wall-clock readings (calendar events, cron schedules).
//
// Recurring events are rearmed at their previous deadline plus the
// period, not at completion time plus the period. A slow callback
// therefore delays only its own next firing and does not accumulate
// drift across firings. If an execute pass finds a recurring event
// several periods behind, it fires once per missed period until the
// event's deadline passes "now".
//
// Queues are not safe for concurrent use; each belongs to exactly one
// agent goroutine.
package sched
