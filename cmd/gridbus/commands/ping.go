// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
)

func pingCommand() *cli.Command {
	var (
		bus     busFlags
		timeout time.Duration
		period  time.Duration
	)
	return &cli.Command{
		Name:    "ping",
		Summary: "Check the round trip through the exchange",
		Description: `Subscribe to a fresh ping topic and publish to it until the exchange
echoes a message back or --timeout passes. Exits 1 on timeout.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ping", pflag.ContinueOnError)
			bus.register(flagSet)
			flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "give up after this long")
			flagSet.DurationVar(&period, "period", 250*time.Millisecond, "resend interval")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, logger, err := bus.load()
			if err != nil {
				return err
			}
			a, publisher, err := newAgent(cfg, logger)
			if err != nil {
				return err
			}

			var (
				ok      bool
				ping    *agent.Ping
				started time.Time
			)
			start := func() error {
				started = a.Clock().Monotonic()
				ping, err = publisher.PingBack(func(echoed bool) {
					ok = echoed
					a.Close()
				}, timeout, period)
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			if err := runAgent(ctx, a, start); err != nil {
				return err
			}

			styles := cli.NewStyles(os.Stdout)
			if !ok {
				fmt.Fprintln(os.Stdout, styles.Bad.Render(fmt.Sprintf("no echo from %s after %v (%d sent)", cfg.PublishAddress(), timeout, ping.Sent())))
				return &cli.ExitError{Code: 1}
			}
			elapsed := a.Clock().Monotonic().Sub(started)
			fmt.Fprintln(os.Stdout, styles.Good.Render(fmt.Sprintf("echo via %s in %v (%d sent)", cfg.PublishAddress(), elapsed.Round(time.Microsecond), ping.Sent())))
			return nil
		},
	}
}
