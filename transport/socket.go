// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// readChunkSize is how much a single read(2) pulls off the descriptor.
const readChunkSize = 64 * 1024

// socket is a non-blocking stream connection owned by one goroutine.
// fd is -1 while disconnected.
type socket struct {
	address     Address
	compression Compression
	fd          int
	closed      bool
	buffer      unitBuffer
	scratch     []byte
}

func newSocket(address Address, compression Compression) socket {
	return socket{address: address, compression: compression, fd: -1}
}

// Address returns the endpoint the socket connects to.
func (s *socket) Address() Address { return s.address }

// Fd returns the connected descriptor, or -1.
func (s *socket) Fd() int { return s.fd }

// Connected reports whether the socket holds a connection.
func (s *socket) Connected() bool { return s.fd >= 0 }

// Closed reports whether Close has been called.
func (s *socket) Closed() bool { return s.closed }

// Pending reports whether a complete unit is already buffered, so the
// reactor treats the socket as readable without polling.
func (s *socket) Pending() bool { return s.buffer.complete() }

func (s *socket) connect() error {
	if s.closed {
		return ErrClosed
	}
	if s.fd >= 0 {
		return nil
	}
	domain, sockaddr, err := s.address.sockaddr()
	if err != nil {
		return err
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket for %s: %w", s.address, err)
	}
	for {
		err = unix.Connect(fd, sockaddr)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("connecting to %s: %w", s.address, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("setting %s non-blocking: %w", s.address, err)
	}
	s.fd = fd
	s.buffer.reset()
	return nil
}

func (s *socket) disconnect() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	s.buffer.reset()
	if err != nil {
		return fmt.Errorf("closing connection to %s: %w", s.address, err)
	}
	return nil
}

func (s *socket) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.disconnect()
}

// writeFrames encodes frames as one unit and writes all of it, waiting
// for POLLOUT whenever the socket buffer is full.
func (s *socket) writeFrames(frames [][]byte) error {
	if s.closed {
		return ErrClosed
	}
	if s.fd < 0 {
		return ErrNotConnected
	}
	unit, err := NewUnit(frames, s.compression)
	if err != nil {
		return err
	}
	data := unit.Bytes()
	for len(data) > 0 {
		written, err := unix.SendmsgN(s.fd, data, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
			data = data[written:]
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := s.wait(unix.POLLOUT); err != nil {
				return err
			}
		case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET):
			s.disconnect()
			return fmt.Errorf("writing to %s: %w", s.address, ErrDisconnected)
		default:
			return fmt.Errorf("writing to %s: %w", s.address, err)
		}
	}
	return nil
}

// readFrames returns the frames of the next unit. Without block it
// returns ErrWouldBlock when no complete unit can be assembled from
// what is already available.
func (s *socket) readFrames(block bool) ([][]byte, error) {
	for {
		unit, ok, err := s.buffer.next()
		if err != nil {
			// A damaged header leaves the stream unsynchronized.
			s.disconnect()
			return nil, err
		}
		if ok {
			return unit.Frames()
		}
		if s.closed {
			return nil, ErrClosed
		}
		if s.fd < 0 {
			return nil, ErrNotConnected
		}

		if s.scratch == nil {
			s.scratch = make([]byte, readChunkSize)
		}
		read, err := unix.Read(s.fd, s.scratch)
		switch {
		case err == nil && read == 0:
			s.disconnect()
			return nil, fmt.Errorf("reading from %s: %w", s.address, ErrDisconnected)
		case err == nil:
			s.buffer.write(s.scratch[:read])
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if !block {
				return nil, ErrWouldBlock
			}
			if err := s.wait(unix.POLLIN); err != nil {
				return nil, err
			}
		case errors.Is(err, unix.ECONNRESET):
			s.disconnect()
			return nil, fmt.Errorf("reading from %s: %w", s.address, ErrDisconnected)
		default:
			return nil, fmt.Errorf("reading from %s: %w", s.address, err)
		}
	}
}

// wait blocks until the descriptor reports one of events.
func (s *socket) wait(events int16) error {
	descriptors := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	for {
		_, err := unix.Poll(descriptors, -1)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("waiting on %s: %w", s.address, err)
		}
	}
}
