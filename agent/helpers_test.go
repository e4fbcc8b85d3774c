// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/gridbus/exchange"
	"github.com/bureau-foundation/gridbus/lib/testutil"
	"github.com/bureau-foundation/gridbus/transport"
)

// testEpoch is a fixed start for fake clocks.
var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type endpoints struct {
	publish   transport.Address
	subscribe transport.Address
}

func newEndpoints(t *testing.T) endpoints {
	t.Helper()
	directory := testutil.SocketDir(t)
	return endpoints{
		publish:   transport.Address{Network: "unix", Location: filepath.Join(directory, "publish.sock")},
		subscribe: transport.Address{Network: "unix", Location: filepath.Join(directory, "subscribe.sock")},
	}
}

func startExchangeAt(t *testing.T, at endpoints) *exchange.Exchange {
	t.Helper()
	ex, err := exchange.New(exchange.Config{
		PublishAddress:   at.publish,
		SubscribeAddress: at.subscribe,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ex.Stop)
	return ex
}

func startExchange(t *testing.T) (*exchange.Exchange, endpoints) {
	t.Helper()
	at := newEndpoints(t)
	return startExchangeAt(t, at), at
}

// newAgent creates an agent on the exchange at the given endpoints,
// lets configure adjust the config, and runs Setup.
func newAgent(t *testing.T, at endpoints, configure func(*Config)) *Agent {
	t.Helper()
	config := Config{
		Name:              "test-agent",
		SubscribeAddress:  at.subscribe,
		PublishAddress:    at.publish,
		Logger:            quietLogger(),
		ReconnectInterval: 20 * time.Millisecond,
	}
	if configure != nil {
		configure(&config)
	}
	a, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Setup(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if state := a.State(); state == StateSetup || state == StateRunning {
			a.Finish()
		}
	})
	return a
}

func newPublisher(t *testing.T, a *Agent) *Publisher {
	t.Helper()
	p, err := NewPublisher(a, PublisherConfig{})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// awaitPrefixes waits until the exchange holds every prefix, so that a
// publish that follows is routed to the agent.
func awaitPrefixes(t *testing.T, ex *exchange.Exchange, prefixes ...string) {
	t.Helper()
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		held := ex.Prefixes()
		for _, prefix := range prefixes {
			if !slices.Contains(held, prefix) {
				return false
			}
		}
		return true
	}, "exchange holding %v", prefixes)
}

// stepUntil steps a real-clock agent until condition holds.
func stepUntil(t *testing.T, a *Agent, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met while stepping: %v", msgAndArgs)
		}
		if _, err := a.Step(10 * time.Millisecond); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
}

// sink accepts connections and never reads from them, standing in for
// an exchange that does not echo.
func sink(t *testing.T) transport.Address {
	t.Helper()
	address := transport.Address{Network: "unix", Location: filepath.Join(testutil.SocketDir(t), "sink.sock")}
	listener, err := transport.Listen(address)
	if err != nil {
		t.Fatal(err)
	}
	accepted := make(chan net.Conn, 8)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		for {
			select {
			case conn := <-accepted:
				conn.Close()
			default:
				return
			}
		}
	})
	return address
}

// runLoop runs Loop on its own goroutine and returns a channel that
// receives its result.
func runLoop(a *Agent) <-chan error {
	result := make(chan error, 1)
	go func() { result <- a.Loop() }()
	return result
}

func isHandlerError(err error) (*HandlerError, bool) {
	var handlerErr *HandlerError
	ok := errors.As(err, &handlerErr)
	return handlerErr, ok
}
