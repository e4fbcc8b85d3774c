// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrWouldBlock is returned by a non-blocking receive with no
	// complete unit available. It is flow control, not a failure.
	ErrWouldBlock = errors.New("transport: operation would block")

	// ErrClosed is returned by operations on a socket after Close.
	ErrClosed = errors.New("transport: socket closed")

	// ErrNotConnected is returned by operations that need a connection
	// on a socket that has none.
	ErrNotConnected = errors.New("transport: socket not connected")

	// ErrDisconnected is returned when the peer closed the connection.
	// The socket is left disconnected and may be connected again.
	ErrDisconnected = errors.New("transport: peer disconnected")
)

// ProtocolError reports a unit or message that violates the wire
// format: malformed headers, a Content-Type list that does not match
// the body parts, or a damaged unit.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: protocol error: %s: %v", e.Reason, e.Err)
	}
	return "transport: protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErrorf(err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Err: err}
}
