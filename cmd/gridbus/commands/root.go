// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the gridbus command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
	"github.com/bureau-foundation/gridbus/lib/version"
)

// Root returns the top-level gridbus command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "gridbus",
		Summary: "Talk to a gridbus exchange",
		Description: `gridbus publishes to, watches, and inspects a gridbus message exchange.

Every command reads the exchange addresses from the configuration
(--config, GRIDBUS_CONFIG, or GRIDBUS_EXCHANGE_* variables) unless
--publish or --subscribe override them.`,
		Subcommands: []*cli.Command{
			publishCommand(),
			watchCommand(),
			subscriptionsCommand(),
			pingCommand(),
			shutdownCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					fmt.Fprintln(os.Stdout, "gridbus", version.Full())
					return nil
				},
			},
		},
	}
}
