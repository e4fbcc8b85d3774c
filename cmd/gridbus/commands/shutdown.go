// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
	"github.com/bureau-foundation/gridbus/lib/topics"
	"github.com/bureau-foundation/gridbus/transport"
)

func shutdownCommand() *cli.Command {
	var (
		bus     busFlags
		confirm bool
	)
	return &cli.Command{
		Name:    "shutdown",
		Summary: "Stop every agent on the bus",
		Description: `Broadcast ` + topics.PlatformShutdown + `. Every agent closes its
subscriber when it receives it and exits its loop. The exchange itself
keeps running.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("shutdown", pflag.ContinueOnError)
			bus.register(flagSet)
			flagSet.BoolVarP(&confirm, "yes", "y", false, "confirm the shutdown")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if !confirm {
				return errors.New("refusing to stop every agent without --yes")
			}
			cfg, _, err := bus.load()
			if err != nil {
				return err
			}
			err = send(cfg, func(pusher *transport.Pusher) error {
				return pusher.SendMessage(topics.PlatformShutdown, cliHeaders(nil))
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "sent %s to %s\n", topics.PlatformShutdown, cfg.PublishAddress())
			return nil
		},
	}
}
