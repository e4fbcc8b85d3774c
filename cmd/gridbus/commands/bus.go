// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
	"github.com/bureau-foundation/gridbus/lib/config"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/transport"
)

// busFlags are the connection flags shared by every bus command.
type busFlags struct {
	configPath string
	publish    string
	subscribe  string
	verbose    bool
}

func (b *busFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&b.configPath, "config", "", "config file (default $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&b.publish, "publish", "", "exchange publish endpoint, overriding the config")
	flagSet.StringVar(&b.subscribe, "subscribe", "", "exchange subscribe endpoint, overriding the config")
	flagSet.BoolVarP(&b.verbose, "verbose", "v", false, "log debug output to stderr")
}

// load resolves the configuration with flag overrides applied.
func (b *busFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(b.configPath)
	if err != nil {
		return nil, nil, err
	}
	if b.publish != "" {
		cfg.Exchange.PublishAddress = b.publish
	}
	if b.subscribe != "" {
		cfg.Exchange.SubscribeAddress = b.subscribe
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, cli.NewCommandLogger(b.verbose), nil
}

// newAgent builds a CLI agent named gridbus-cli.
func newAgent(cfg *config.Config, logger *slog.Logger, subscriptions ...agent.Subscription) (*agent.Agent, *agent.Publisher, error) {
	agentConfig := cfg.AgentConfig(logger)
	agentConfig.Name = "gridbus-cli"
	agentConfig.ErrorPolicy = agent.Continue
	agentConfig.Subscriptions = subscriptions
	a, err := agent.New(agentConfig)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := agent.NewPublisher(a, agent.PublisherConfig{})
	if err != nil {
		return nil, nil, err
	}
	return a, publisher, nil
}

// runAgent sets a up, calls start on the loop goroutine, and loops
// until the agent closes or ctx ends.
func runAgent(ctx context.Context, a *agent.Agent, start func() error) error {
	if err := a.Setup(); err != nil {
		return errors.Join(err, a.Finish())
	}
	if start != nil {
		if err := start(); err != nil {
			return errors.Join(err, a.Finish())
		}
	}
	stop := context.AfterFunc(ctx, a.Stop)
	defer stop()
	return errors.Join(a.Loop(), a.Finish())
}

// signalContext is cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// send pushes one message without running an agent.
func send(cfg *config.Config, message func(*transport.Pusher) error) error {
	pusher := transport.NewPusher(cfg.PublishAddress(), cfg.Agent.Compression)
	defer pusher.Close()
	if err := message(pusher); err != nil {
		return fmt.Errorf("publishing to %s: %w", cfg.PublishAddress(), err)
	}
	return nil
}

// cliHeaders returns headers stamped the way agent publishers stamp
// theirs.
func cliHeaders(h *headers.Headers) *headers.Headers {
	if h == nil {
		h = headers.New()
	}
	if !h.Contains(headers.Date) {
		h.Set(headers.Date, time.Now().UTC().Format(time.RFC3339Nano))
	}
	if !h.Contains(headers.From) {
		h.Set(headers.From, "gridbus-cli")
	}
	return h
}
