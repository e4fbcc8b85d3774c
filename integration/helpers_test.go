// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration_test runs the gridbus pieces together: a real
// exchange on Unix sockets, agents driven by their own loops, and the
// gridbus command tree invoked in-process the way the binary would.
package integration_test

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/cmd/gridbus/commands"
	"github.com/bureau-foundation/gridbus/exchange"
	"github.com/bureau-foundation/gridbus/lib/testutil"
	"github.com/bureau-foundation/gridbus/transport"
)

// bus is a running exchange and the endpoint URLs for reaching it.
type bus struct {
	exchange  *exchange.Exchange
	publish   string
	subscribe string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T) *bus {
	t.Helper()
	b := &bus{
		publish:   testutil.SocketURL(t, "publish.sock"),
		subscribe: testutil.SocketURL(t, "subscribe.sock"),
	}
	ex, err := exchange.New(exchange.Config{
		PublishAddress:   transport.MustParseAddress(b.publish),
		SubscribeAddress: transport.MustParseAddress(b.subscribe),
		Compression:      transport.CompressionLZ4,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ex.Stop)
	b.exchange = ex
	return b
}

// agentConfig returns a config for an agent named name on b.
func (b *bus) agentConfig(name string) agent.Config {
	return agent.Config{
		Name:              name,
		SubscribeAddress:  transport.MustParseAddress(b.subscribe),
		PublishAddress:    transport.MustParseAddress(b.publish),
		Compression:       transport.CompressionZstd,
		Logger:            quietLogger(),
		ReconnectInterval: 20 * time.Millisecond,
		ErrorPolicy:       agent.Continue,
	}
}

// runAgent runs a on its own goroutine. The returned channel closes
// when Run returns.
func runAgent(t *testing.T, a *agent.Agent) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Run(ctx); err != nil {
			t.Errorf("agent %s: %v", a.Name(), err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

// awaitPrefixes waits until the exchange forwards every prefix.
func (b *bus) awaitPrefixes(t *testing.T, prefixes ...string) {
	t.Helper()
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		held := b.exchange.Prefixes()
		for _, prefix := range prefixes {
			if !slices.Contains(held, prefix) {
				return false
			}
		}
		return true
	}, "exchange holding %v", prefixes)
}

// gridbus runs the gridbus command tree against b.
func (b *bus) gridbus(args ...string) error {
	command, rest := args[0], args[1:]
	full := append([]string{command, "--publish", b.publish, "--subscribe", b.subscribe}, rest...)
	return commands.Root().Execute(full)
}
