// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
	"github.com/bureau-foundation/gridbus/lib/sched"
	"github.com/bureau-foundation/gridbus/lib/topics"
)

// Ping is an outstanding PingBack.
type Ping struct {
	// Cookie is the unique token in the ping topic and Cookie header.
	Cookie string
	// Topic is the ping topic, agent/ping/<Cookie>.
	Topic string

	publisher    *Publisher
	callback     func(bool)
	subscription SubscriptionID
	resend       *sched.Event
	deadline     *sched.Event
	done         bool
	sent         int
}

// Done reports whether the ping has completed or been cancelled.
func (p *Ping) Done() bool { return p.done }

// Sent returns how many ping messages have been published.
func (p *Ping) Sent() int { return p.sent }

// Cancel stops the ping without invoking its callback.
func (p *Ping) Cancel() {
	p.teardown()
}

// PingBack checks the round trip through the exchange. It subscribes to
// a fresh ping topic, publishes to it immediately and then every
// period, and calls callback(true) when the first echo arrives or
// callback(false) once timeout has elapsed on the monotonic clock. The
// callback runs exactly once and no ping is published after it. A
// timeout of zero or less waits forever.
func (p *Publisher) PingBack(callback func(ok bool), timeout, period time.Duration) (*Ping, error) {
	if period <= 0 {
		return nil, fmt.Errorf("agent: ping period must be positive, got %v", period)
	}
	a := p.agent
	cookie := uuid.NewString()
	ping := &Ping{
		Cookie:    cookie,
		Topic:     topics.AgentPing(cookie),
		publisher: p,
		callback:  callback,
	}

	ping.subscription = a.SubscribeRule(match.Exact(ping.Topic), func(string, *headers.Headers, [][]byte, match.Result) error {
		ping.complete(true)
		return nil
	})
	// The deadline is queued before the resend timer so that when both
	// fall due together the deadline wins.
	if timeout > 0 {
		ping.deadline = a.Timer(timeout, func() error {
			ping.complete(false)
			return nil
		})
	}
	ping.resend = a.PeriodicTimer(period, func() error {
		ping.send()
		return nil
	})

	if err := ping.publish(); err != nil {
		ping.teardown()
		return nil, err
	}
	return ping, nil
}

func (p *Ping) publish() error {
	h := headers.New()
	h.Set(headers.Cookie, p.Cookie)
	if err := p.publisher.Publish(p.Topic, h); err != nil {
		return fmt.Errorf("agent: publishing ping: %w", err)
	}
	p.sent++
	return nil
}

// send publishes one retry. Failures are logged; the next period
// retries.
func (p *Ping) send() {
	if p.done {
		return
	}
	if err := p.publish(); err != nil {
		p.publisher.agent.logger.Warn("ping publish failed", "topic", p.Topic, "error", err)
	}
}

func (p *Ping) complete(ok bool) {
	if p.done {
		return
	}
	p.teardown()
	if p.callback != nil {
		p.callback(ok)
	}
}

func (p *Ping) teardown() {
	if p.done {
		return
	}
	p.done = true
	p.resend.Cancel()
	p.deadline.Cancel()
	p.publisher.agent.Unsubscribe(p.subscription)
}
