// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// gridbus-exchange runs the message exchange every gridbus agent
// connects to: a publish endpoint that accepts units from publishers
// and a subscribe endpoint that forwards them to interested
// subscribers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/exchange"
	"github.com/bureau-foundation/gridbus/lib/config"
	"github.com/bureau-foundation/gridbus/lib/process"
	"github.com/bureau-foundation/gridbus/lib/version"
	"github.com/bureau-foundation/gridbus/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath    string
		publish       string
		subscribe     string
		queueLength   int
		statsInterval time.Duration
		showVersion   bool
	)
	flagSet := pflag.NewFlagSet("gridbus-exchange", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&publish, "publish", "", "publish endpoint to bind, overriding the config")
	flagSet.StringVar(&subscribe, "subscribe", "", "subscribe endpoint to bind, overriding the config")
	flagSet.IntVar(&queueLength, "queue-length", 0, "per-subscriber queue length, overriding the config")
	flagSet.DurationVar(&statsInterval, "stats-interval", time.Minute, "how often to log forwarding counters (0 disables)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			fmt.Fprintf(os.Stderr, "Usage: gridbus-exchange [flags]\n\n%s", flagSet.FlagUsages())
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("gridbus-exchange %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", flagSet.Arg(0))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if publish != "" {
		cfg.Exchange.PublishAddress = publish
	}
	if subscribe != "" {
		cfg.Exchange.SubscribeAddress = subscribe
	}
	if queueLength != 0 {
		cfg.Exchange.QueueLength = queueLength
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	for _, address := range []transport.Address{cfg.PublishAddress(), cfg.SubscribeAddress()} {
		if address.Network == "unix" {
			if err := os.MkdirAll(filepath.Dir(address.Location), 0o700); err != nil {
				return fmt.Errorf("creating socket directory for %s: %w", address, err)
			}
		}
	}

	ex, err := exchange.New(exchange.Config{
		PublishAddress:   cfg.PublishAddress(),
		SubscribeAddress: cfg.SubscribeAddress(),
		QueueLength:      cfg.Exchange.QueueLength,
		Compression:      cfg.Exchange.Compression,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := ex.Start(ctx); err != nil {
		return err
	}
	logger.Info("exchange started",
		"version", version.Info(),
		"publish", ex.PublishAddress().String(),
		"subscribe", ex.SubscribeAddress().String(),
	)

	if statsInterval > 0 {
		go logStats(ctx, logger, ex, statsInterval)
	}

	ex.Wait()
	logStatsOnce(logger, ex, "exchange stopped")
	return nil
}

// logStats logs the exchange counters every interval until ctx ends.
func logStats(ctx context.Context, logger *slog.Logger, ex *exchange.Exchange, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStatsOnce(logger, ex, "exchange stats")
		}
	}
}

func logStatsOnce(logger *slog.Logger, ex *exchange.Exchange, message string) {
	stats := ex.Stats()
	logger.Info(message,
		"received", stats.Received,
		"delivered", stats.Delivered,
		"dropped", stats.Dropped,
		"malformed", stats.Malformed,
		"subscribers", stats.Subscribers,
		"prefixes", stats.Prefixes,
	)
}
