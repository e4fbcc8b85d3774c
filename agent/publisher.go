// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"time"

	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/transport"
)

// PublisherConfig configures a Publisher. Zero fields fall back to the
// agent's Config.
type PublisherConfig struct {
	// Address is the exchange publish endpoint. Defaults to the agent's
	// PublishAddress.
	Address transport.Address

	// Compression defaults to the agent's Compression.
	Compression *transport.Compression

	// From is stamped into messages that carry no From header.
	// Defaults to the agent's Name; empty stamps nothing.
	From *string
}

// Publisher sends messages from an agent through its own outbound
// socket, so sending never competes with the agent's receive
// readiness. It connects on first send and is closed by Finish. Use it
// only from the agent's loop goroutine.
type Publisher struct {
	agent  *Agent
	pusher *transport.Pusher
	from   string
}

// NewPublisher creates a publisher bound to a.
func NewPublisher(a *Agent, config PublisherConfig) (*Publisher, error) {
	address := config.Address
	if address.IsZero() {
		address = a.config.PublishAddress
	}
	if address.IsZero() {
		return nil, errors.New("agent: publisher needs a publish address")
	}
	compression := a.config.Compression
	if config.Compression != nil {
		compression = *config.Compression
	}
	from := a.config.Name
	if config.From != nil {
		from = *config.From
	}

	p := &Publisher{
		agent:  a,
		pusher: transport.NewPusher(address, compression),
		from:   from,
	}
	a.OnFinish(p.pusher.Close)
	return p, nil
}

// Address returns the endpoint the publisher sends to.
func (p *Publisher) Address() transport.Address { return p.pusher.Address() }

// Publish sends topic, headers and raw parts.
func (p *Publisher) Publish(topic string, h *headers.Headers, parts ...[]byte) error {
	return p.pusher.SendMessage(topic, p.stamp(h), parts...)
}

// PublishEx sends parts with their content types recorded in the
// Content-Type header.
func (p *Publisher) PublishEx(topic string, h *headers.Headers, parts ...transport.Part) error {
	return p.pusher.SendMessageEx(topic, p.stamp(h), parts...)
}

// PublishJSON sends each object JSON-encoded as an application/json
// part.
func (p *Publisher) PublishJSON(topic string, h *headers.Headers, objects ...any) error {
	return p.pusher.PublishJSON(topic, p.stamp(h), objects...)
}

// stamp returns a copy of h with Date and From filled in when absent.
func (p *Publisher) stamp(h *headers.Headers) *headers.Headers {
	var stamped *headers.Headers
	if h != nil {
		stamped = h.Copy()
	} else {
		stamped = headers.New()
	}
	if !stamped.Contains(headers.Date) {
		stamped.Set(headers.Date, p.agent.clock.Now().UTC().Format(time.RFC3339Nano))
	}
	if p.from != "" && !stamped.Contains(headers.From) {
		stamped.Set(headers.From, p.from)
	}
	return stamped
}
