// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/bureau-foundation/gridbus/lib/headers"
)

// Control frame opcodes sent from subscribers to the exchange.
const (
	ControlUnsubscribe byte = 0x00
	ControlSubscribe   byte = 0x01
)

// ControlFrame returns the single frame of a subscription control unit.
func ControlFrame(subscribe bool, prefix string) []byte {
	frame := make([]byte, 1+len(prefix))
	if subscribe {
		frame[0] = ControlSubscribe
	}
	copy(frame[1:], prefix)
	return frame
}

// ParseControlFrame is the inverse of ControlFrame.
func ParseControlFrame(frame []byte) (subscribe bool, prefix string, err error) {
	if len(frame) == 0 {
		return false, "", protocolErrorf(nil, "empty control frame")
	}
	switch frame[0] {
	case ControlSubscribe:
		return true, string(frame[1:]), nil
	case ControlUnsubscribe:
		return false, string(frame[1:]), nil
	default:
		return false, "", protocolErrorf(nil, "unknown control opcode 0x%02x", frame[0])
	}
}

// Subscriber receives messages from the exchange's subscribe endpoint
// for every topic starting with one of its prefixes.
type Subscriber struct {
	socket
	interests []string
	interest  map[string]bool
}

// NewSubscriber returns an unconnected subscriber for address.
func NewSubscriber(address Address) *Subscriber {
	return &Subscriber{
		socket:   newSocket(address, CompressionNone),
		interest: make(map[string]bool),
	}
}

// Connect opens the connection and replays the interest set. It is a
// no-op when already connected.
func (s *Subscriber) Connect() error {
	if s.Connected() {
		return nil
	}
	if err := s.connect(); err != nil {
		return err
	}
	for _, prefix := range s.interests {
		if err := s.writeFrames([][]byte{ControlFrame(true, prefix)}); err != nil {
			s.disconnect()
			return fmt.Errorf("replaying subscription %q: %w", prefix, err)
		}
	}
	return nil
}

// Disconnect drops the connection but keeps the interest set.
func (s *Subscriber) Disconnect() error { return s.disconnect() }

// Close disconnects permanently.
func (s *Subscriber) Close() error { return s.close() }

// Subscribe adds prefix to the interest set. When connected the
// exchange is told immediately; otherwise on the next Connect.
func (s *Subscriber) Subscribe(prefix string) error {
	if s.closed {
		return ErrClosed
	}
	if s.interest[prefix] {
		return nil
	}
	s.interest[prefix] = true
	s.interests = append(s.interests, prefix)
	if !s.Connected() {
		return nil
	}
	return s.writeFrames([][]byte{ControlFrame(true, prefix)})
}

// Unsubscribe removes prefix from the interest set.
func (s *Subscriber) Unsubscribe(prefix string) error {
	if s.closed {
		return ErrClosed
	}
	if !s.interest[prefix] {
		return nil
	}
	delete(s.interest, prefix)
	for i, existing := range s.interests {
		if existing == prefix {
			s.interests = append(s.interests[:i], s.interests[i+1:]...)
			break
		}
	}
	if !s.Connected() {
		return nil
	}
	return s.writeFrames([][]byte{ControlFrame(false, prefix)})
}

// Subscribed reports whether prefix is in the interest set.
func (s *Subscriber) Subscribed(prefix string) bool { return s.interest[prefix] }

// Interests returns the interest set in subscription order.
func (s *Subscriber) Interests() []string {
	return append([]string(nil), s.interests...)
}

// RecvFrames returns the raw frames of the next unit.
func (s *Subscriber) RecvFrames(block bool) ([][]byte, error) {
	return s.readFrames(block)
}

// RecvMessage receives and parses one message.
func (s *Subscriber) RecvMessage(block bool) (Message, error) {
	frames, err := s.readFrames(block)
	if err != nil {
		return Message{}, err
	}
	return ParseMessage(frames)
}

// RecvMessageEx receives one message and pairs each body part with its
// Content-Type entry.
func (s *Subscriber) RecvMessageEx(block bool) (string, *headers.Headers, []Part, error) {
	message, err := s.RecvMessage(block)
	if err != nil {
		return "", nil, nil, err
	}
	parts, err := message.TypedParts()
	if err != nil {
		return "", nil, nil, err
	}
	return message.Topic, message.Headers, parts, nil
}
