// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"log/slog"
	"net"
	"strings"

	"github.com/bureau-foundation/gridbus/lib/netutil"
	"github.com/bureau-foundation/gridbus/transport"
)

// subscriber is one connection on the subscribe endpoint. prefixes is
// guarded by the exchange mutex.
type subscriber struct {
	logger   *slog.Logger
	prefixes map[string]bool
	queue    chan []byte
}

func (s *subscriber) wants(topic string) bool {
	for prefix := range s.prefixes {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

// enqueue adds wire without blocking and reports whether it fit.
func (s *subscriber) enqueue(wire []byte) bool {
	select {
	case s.queue <- wire:
		return true
	default:
		return false
	}
}

// enqueueEvicting adds wire, discarding the oldest queued units until
// it fits, and returns how many were discarded. The queue is buffered,
// so the loop ends once one slot is free.
func (s *subscriber) enqueueEvicting(wire []byte) int {
	evicted := 0
	for {
		select {
		case s.queue <- wire:
			return evicted
		default:
		}
		select {
		case <-s.queue:
			evicted++
		default:
		}
	}
}

func (e *Exchange) handleSubscriber(connection net.Conn, connectionID int64) {
	s := &subscriber{
		logger:   e.logger.With("connection_id", connectionID, "role", "subscriber"),
		prefixes: make(map[string]bool),
		queue:    make(chan []byte, e.config.QueueLength),
	}
	s.logger.Debug("subscriber connected")

	e.mu.Lock()
	e.subscribers[s] = struct{}{}
	e.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for wire := range s.queue {
			if _, err := connection.Write(wire); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					s.logger.Warn("subscriber write failed", "error", err)
				}
				// Unblock the reader; the deferred cleanup does the rest.
				connection.Close()
				for range s.queue {
				}
				return
			}
		}
	}()

	defer func() {
		e.removeSubscriber(s)
		close(s.queue)
		<-writerDone
		s.logger.Debug("subscriber disconnected")
	}()

	for {
		unit, err := transport.ReadUnit(connection)
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Warn("subscriber read failed", "error", err)
			}
			return
		}
		frames, err := unit.Frames()
		if err != nil || len(frames) == 0 {
			e.malformed.Add(1)
			s.logger.Warn("malformed control unit", "error", err)
			continue
		}
		subscribe, prefix, err := transport.ParseControlFrame(frames[0])
		if err != nil {
			e.malformed.Add(1)
			s.logger.Warn("malformed control frame", "error", err)
			continue
		}
		e.changeInterest(s, subscribe, prefix)
	}
}

// changeInterest applies one control frame and announces the prefix
// when it gains its first holder or loses its last.
func (e *Exchange) changeInterest(s *subscriber, subscribe bool, prefix string) {
	e.mu.Lock()
	announce := false
	switch {
	case subscribe && !s.prefixes[prefix]:
		s.prefixes[prefix] = true
		e.holders[prefix]++
		announce = e.holders[prefix] == 1
	case !subscribe && s.prefixes[prefix]:
		delete(s.prefixes, prefix)
		announce = e.releaseLocked(prefix)
	}
	e.mu.Unlock()

	s.logger.Debug("subscription changed", "prefix", prefix, "subscribe", subscribe)
	if announce {
		e.announce(subscribe, prefix)
	}
}

// releaseLocked drops one holder of prefix and reports whether it was
// the last.
func (e *Exchange) releaseLocked(prefix string) bool {
	e.holders[prefix]--
	if e.holders[prefix] > 0 {
		return false
	}
	delete(e.holders, prefix)
	return true
}

func (e *Exchange) removeSubscriber(s *subscriber) {
	e.mu.Lock()
	delete(e.subscribers, s)
	var released []string
	for prefix := range s.prefixes {
		if e.releaseLocked(prefix) {
			released = append(released, prefix)
		}
	}
	s.prefixes = nil
	e.mu.Unlock()

	for _, prefix := range released {
		e.announce(false, prefix)
	}
}
