// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Address is a parsed endpoint: ipc:///path or unix:///path for a
// Unix-domain stream socket, tcp://host:port for TCP.
type Address struct {
	// Network is "unix" or "tcp".
	Network string
	// Location is the socket path or host:port.
	Location string
}

// ParseAddress parses an endpoint URL.
func ParseAddress(address string) (Address, error) {
	scheme, rest, ok := strings.Cut(address, "://")
	if !ok {
		return Address{}, fmt.Errorf("address %q: missing scheme", address)
	}
	switch scheme {
	case "ipc", "unix":
		if rest == "" {
			return Address{}, fmt.Errorf("address %q: empty socket path", address)
		}
		return Address{Network: "unix", Location: rest}, nil
	case "tcp":
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return Address{}, fmt.Errorf("address %q: %w", address, err)
		}
		return Address{Network: "tcp", Location: rest}, nil
	default:
		return Address{}, fmt.Errorf("address %q: unsupported scheme %q", address, scheme)
	}
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(address string) Address {
	parsed, err := ParseAddress(address)
	if err != nil {
		panic(err)
	}
	return parsed
}

func (a Address) String() string {
	if a.Network == "unix" {
		return "ipc://" + a.Location
	}
	return a.Network + "://" + a.Location
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool { return a.Network == "" && a.Location == "" }

// Listen opens a stream listener on a. A stale Unix socket file left
// by a previous process is removed first.
func Listen(a Address) (net.Listener, error) {
	switch a.Network {
	case "unix":
		if err := os.Remove(a.Location); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket %s: %w", a.Location, err)
		}
		listener, err := net.Listen("unix", a.Location)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", a, err)
		}
		return listener, nil
	case "tcp":
		listener, err := net.Listen("tcp", a.Location)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", a, err)
		}
		return listener, nil
	default:
		return nil, fmt.Errorf("listening on %s: unsupported network %q", a, a.Network)
	}
}

// AddressOf returns the Address of a listener opened by Listen, with
// the kernel-assigned port filled in for tcp://host:0.
func AddressOf(listener net.Listener) Address {
	addr := listener.Addr()
	return Address{Network: addr.Network(), Location: addr.String()}
}

// sockaddr resolves a into a socket domain and address for connect(2).
func (a Address) sockaddr() (int, unix.Sockaddr, error) {
	switch a.Network {
	case "unix":
		return unix.AF_UNIX, &unix.SockaddrUnix{Name: a.Location}, nil
	case "tcp":
		resolved, err := net.ResolveTCPAddr("tcp", a.Location)
		if err != nil {
			return 0, nil, fmt.Errorf("resolving %s: %w", a, err)
		}
		if ip4 := resolved.IP.To4(); ip4 != nil {
			sockaddr := &unix.SockaddrInet4{Port: resolved.Port}
			copy(sockaddr.Addr[:], ip4)
			return unix.AF_INET, sockaddr, nil
		}
		if resolved.IP == nil {
			// "tcp://:port" means the local host.
			return unix.AF_INET, &unix.SockaddrInet4{Port: resolved.Port, Addr: [4]byte{127, 0, 0, 1}}, nil
		}
		sockaddr := &unix.SockaddrInet6{Port: resolved.Port}
		copy(sockaddr.Addr[:], resolved.IP.To16())
		return unix.AF_INET6, sockaddr, nil
	default:
		return 0, nil, fmt.Errorf("unsupported network %q", a.Network)
	}
}
