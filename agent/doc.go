// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent is the gridbus agent core: a single goroutine that
// owns a subscriber socket, a subscription table, and two timer queues.
//
// An agent moves through StateCreated, StateSetup, StateRunning,
// StateFinishing and StateStopped. New wires the subscriber transport,
// the reactor, and the declarative Subscriptions; Setup starts the
// declarative Periodics and connects; Loop steps until the subscriber
// closes; Finish disconnects. Run does all three and also stops on
// context cancellation.
//
// Each Poll captures the monotonic and wall clocks, runs every due
// event on both queues, and waits on the reactor no longer than the
// nearest timer, the caller's timeout, or Config.LoopInterval.
// Monotonic timers (Timer, PeriodicTimer) are immune to wall-clock
// steps; wall timers (Schedule, ScheduleCron) track calendar time.
//
// A received message is delivered to every handler whose prefix starts
// the topic. Handlers under one prefix run in registration order; the
// order across prefixes is unspecified. A handler's predicate may veto
// delivery; its Result is passed to the callback. The platform
// shutdown topic always closes the subscriber after dispatch, even when
// a handler fails or panics.
//
// Handler failures follow Config.ErrorPolicy: Propagate returns a
// *HandlerError from Step and Loop, Continue logs it and moves on.
//
// Only Submit, Stop, State and Closed may be called from other
// goroutines. Submit queues a function for the loop goroutine and
// wakes it through a self-pipe.
//
// Publisher adds an outbound socket with Publish, PublishJSON,
// PublishEx and PingBack.
package agent
