// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/gridbus/lib/testutil"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input   string
		want    Address
		wantErr bool
		text    string
	}{
		{input: "ipc:///run/gridbus/publish", want: Address{"unix", "/run/gridbus/publish"}, text: "ipc:///run/gridbus/publish"},
		{input: "unix:///tmp/s.sock", want: Address{"unix", "/tmp/s.sock"}, text: "ipc:///tmp/s.sock"},
		{input: "tcp://127.0.0.1:22916", want: Address{"tcp", "127.0.0.1:22916"}, text: "tcp://127.0.0.1:22916"},
		{input: "tcp://[::1]:1", want: Address{"tcp", "[::1]:1"}, text: "tcp://[::1]:1"},
		{input: "tcp://localhost", wantErr: true},
		{input: "ipc://", wantErr: true},
		{input: "inproc://x", wantErr: true},
		{input: "/no/scheme", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAddress(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseAddress(%q) = %v, want error", test.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q): %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", test.input, got, test.want)
			}
			if got.String() != test.text {
				t.Errorf("String() = %q, want %q", got.String(), test.text)
			}
		})
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	t.Parallel()
	path := filepath.Join(testutil.SocketDir(t), "stale.sock")
	stale, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	// Leave the socket file behind the way a crashed process would.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()

	listener, err := Listen(Address{Network: "unix", Location: path})
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	defer listener.Close()
	if got := AddressOf(listener); got.Location != path || got.Network != "unix" {
		t.Errorf("AddressOf = %+v", got)
	}
}

func TestListenTCPAssignsPort(t *testing.T) {
	t.Parallel()
	listener, err := Listen(MustParseAddress("tcp://127.0.0.1:0"))
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	address := AddressOf(listener)
	if address.Network != "tcp" || address.Location == "127.0.0.1:0" {
		t.Errorf("AddressOf = %+v, want an assigned port", address)
	}
}
