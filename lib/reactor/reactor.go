// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Source is anything with a pollable descriptor. Fd returns a negative
// value while the source has no descriptor (for example a socket that
// is not connected); such sources are skipped by Poll.
type Source interface {
	Fd() int
}

// Pender is implemented by sources that may hold complete input in a
// userspace buffer.
type Pender interface {
	Pending() bool
}

// Kind is the readiness direction of an Event.
type Kind uint8

const (
	Incoming Kind = iota + 1
	Outgoing
)

func (k Kind) String() string {
	switch k {
	case Incoming:
		return "incoming"
	case Outgoing:
		return "outgoing"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Callback handles readiness of source in direction kind.
type Callback func(source Source, kind Kind) error

// Event is one ready (source, direction) pair with the callback
// registered for it.
type Event struct {
	Source   Source
	Kind     Kind
	Callback Callback
}

// Fire invokes the event's callback.
func (e Event) Fire() error {
	return e.Callback(e.Source, e.Kind)
}

type registration struct {
	source   Source
	incoming Callback
	outgoing Callback
}

// Reactor is a poll(2)-backed readiness multiplexer. The zero value is
// ready to use.
type Reactor struct {
	registrations []*registration
}

// New returns an empty Reactor.
func New() *Reactor {
	return &Reactor{}
}

// Register sets the callbacks for source, replacing any previous
// registration. Passing nil for both callbacks removes the source.
func (r *Reactor) Register(source Source, incoming, outgoing Callback) {
	if incoming == nil && outgoing == nil {
		r.Unregister(source)
		return
	}
	if existing := r.find(source); existing != nil {
		existing.incoming = incoming
		existing.outgoing = outgoing
		return
	}
	r.registrations = append(r.registrations, &registration{
		source:   source,
		incoming: incoming,
		outgoing: outgoing,
	})
}

// Modify changes the callbacks of source. It is the same operation as
// Register.
func (r *Reactor) Modify(source Source, incoming, outgoing Callback) {
	r.Register(source, incoming, outgoing)
}

// Unregister removes source and reports whether it was registered.
func (r *Reactor) Unregister(source Source) bool {
	for i, existing := range r.registrations {
		if existing.source == source {
			r.registrations = append(r.registrations[:i], r.registrations[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered sources.
func (r *Reactor) Len() int { return len(r.registrations) }

func (r *Reactor) find(source Source) *registration {
	for _, existing := range r.registrations {
		if existing.source == source {
			return existing
		}
	}
	return nil
}

// Poll waits up to timeout for any registered source to become ready
// and returns the ready events in registration order. A negative
// timeout waits forever; zero checks without blocking. Positive
// timeouts shorter than a millisecond round up to one millisecond.
//
// An interrupted wait (EINTR) returns no events and no error; the
// caller re-checks its timers and polls again.
func (r *Reactor) Poll(timeout time.Duration) ([]Event, error) {
	var (
		descriptors []unix.PollFd
		owners      []*registration
		buffered    = make(map[*registration]bool)
	)
	for _, entry := range r.registrations {
		if entry.incoming != nil {
			if pender, ok := entry.source.(Pender); ok && pender.Pending() {
				buffered[entry] = true
			}
		}
		fd := entry.source.Fd()
		if fd < 0 {
			continue
		}
		var events int16
		if entry.incoming != nil {
			events |= unix.POLLIN
		}
		if entry.outgoing != nil {
			events |= unix.POLLOUT
		}
		descriptors = append(descriptors, unix.PollFd{Fd: int32(fd), Events: events})
		owners = append(owners, entry)
	}

	milliseconds := timeoutMilliseconds(timeout)
	if len(buffered) > 0 {
		milliseconds = 0
	}

	if _, err := unix.Poll(descriptors, milliseconds); err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: poll: %w", err)
	}

	revents := make(map[*registration]int16, len(owners))
	for i, descriptor := range descriptors {
		revents[owners[i]] |= descriptor.Revents
	}

	var ready []Event
	for _, entry := range r.registrations {
		flags := revents[entry]
		if entry.incoming != nil && (buffered[entry] || flags&(unix.POLLIN|unix.POLLPRI|unix.POLLHUP|unix.POLLERR) != 0) {
			ready = append(ready, Event{Source: entry.source, Kind: Incoming, Callback: entry.incoming})
		}
		if entry.outgoing != nil && flags&(unix.POLLOUT|unix.POLLERR) != 0 {
			ready = append(ready, Event{Source: entry.source, Kind: Outgoing, Callback: entry.outgoing})
		}
	}
	return ready, nil
}

func timeoutMilliseconds(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	milliseconds := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		milliseconds++
	}
	const maxMilliseconds = 1<<31 - 1
	if milliseconds > maxMilliseconds {
		return maxMilliseconds
	}
	return int(milliseconds)
}
