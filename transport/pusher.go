// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/bureau-foundation/gridbus/lib/headers"
)

// Pusher sends messages to the exchange's publish endpoint. It connects
// on first use.
type Pusher struct {
	socket
}

// NewPusher returns an unconnected pusher for address. Units whose
// payload is large enough are compressed with compression.
func NewPusher(address Address, compression Compression) *Pusher {
	return &Pusher{socket: newSocket(address, compression)}
}

// Connect opens the connection. It is a no-op when already connected.
func (p *Pusher) Connect() error { return p.connect() }

// Disconnect drops the connection; the next send reconnects.
func (p *Pusher) Disconnect() error { return p.disconnect() }

// Close disconnects permanently.
func (p *Pusher) Close() error { return p.close() }

// SendFrames sends frames as one unit.
func (p *Pusher) SendFrames(frames [][]byte) error {
	if err := p.connect(); err != nil {
		return err
	}
	return p.writeFrames(frames)
}

// SendMessage sends topic, the headers as JSON, then each part.
func (p *Pusher) SendMessage(topic string, h *headers.Headers, parts ...[]byte) error {
	frames, err := MessageFrames(topic, h, parts...)
	if err != nil {
		return err
	}
	return p.SendFrames(frames)
}

// SendMessageEx records each part's content type in the Content-Type
// header and sends the message. The caller's headers are not modified.
func (p *Pusher) SendMessageEx(topic string, h *headers.Headers, parts ...Part) error {
	withTypes, data := TypedFrames(h, parts)
	return p.SendMessage(topic, withTypes, data...)
}

// PublishJSON encodes each object as JSON and sends them as parts with
// content type application/json.
func (p *Pusher) PublishJSON(topic string, h *headers.Headers, objects ...any) error {
	parts, err := JSONParts(objects...)
	if err != nil {
		return err
	}
	return p.SendMessageEx(topic, h, parts...)
}
