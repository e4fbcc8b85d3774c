// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gridbus/lib/clock"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
	"github.com/bureau-foundation/gridbus/transport"
)

// Forever is the Step and Poll timeout that never expires.
const Forever time.Duration = -1

// DefaultLoopInterval bounds a single reactor wait when nothing else
// limits it.
const DefaultLoopInterval = 60 * time.Second

// DefaultReconnectInterval is the delay between attempts to reconnect a
// subscriber whose exchange connection dropped.
const DefaultReconnectInterval = time.Second

// State is an agent's lifecycle stage.
type State int32

const (
	StateCreated State = iota
	StateSetup
	StateRunning
	StateFinishing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateFinishing:
		return "finishing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Callback handles a message delivered to a subscription. result is
// the subscription predicate's Result, or the zero Result when the
// subscription has no predicate.
type Callback func(topic string, h *headers.Headers, parts [][]byte, result match.Result) error

// SubscriptionID identifies one registered handler.
type SubscriptionID uint64

// Subscription is a declarative handler registration, applied by New.
type Subscription struct {
	Prefix    string
	Predicate match.Predicate
	// Headers, when set, must admit the message headers as well.
	Headers  match.HeaderTest
	Callback Callback
}

// On builds a Subscription from a match rule.
func On(rule match.Rule, callback Callback) Subscription {
	return Subscription{Prefix: rule.Prefix, Predicate: rule.Predicate, Callback: callback}
}

// Periodic is a declarative recurring monotonic timer, started by Setup.
// The first call happens one Period after Setup.
type Periodic struct {
	Period time.Duration
	Func   func() error
}

// Config holds everything an agent needs. Addresses are required; all
// other fields have defaults.
type Config struct {
	// Name identifies the agent in logs and in the From header stamped
	// by publishers.
	Name string

	// SubscribeAddress is the exchange endpoint the agent receives
	// messages from.
	SubscribeAddress transport.Address

	// PublishAddress is the exchange endpoint publishers send to.
	PublishAddress transport.Address

	// Compression applies to units sent by publishers.
	Compression transport.Compression

	Clock  clock.Clock
	Logger *slog.Logger

	LoopInterval      time.Duration
	ReconnectInterval time.Duration
	ErrorPolicy       ErrorPolicy

	Periodics     []Periodic
	Subscriptions []Subscription
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = DefaultLoopInterval
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
}
