// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
	"github.com/bureau-foundation/gridbus/lib/topics"
)

func subscriptionsCommand() *cli.Command {
	var (
		bus     busFlags
		follow  bool
		asJSON  bool
		timeout time.Duration
	)
	return &cli.Command{
		Name:    "subscriptions",
		Summary: "List or follow the prefixes the exchange is forwarding",
		Description: `Without --follow, ask the exchange which prefixes currently have at
least one subscriber (optionally only those starting with the given
prefix) and print them. The list includes the prefixes this command
subscribes to while it asks.

With --follow, print a line for every subscription the exchange
announces: "+ prefix" when the first subscriber arrives and "- prefix"
when the last one leaves.`,
		Usage: "gridbus subscriptions [flags] [prefix]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("subscriptions", pflag.ContinueOnError)
			bus.register(flagSet)
			flagSet.BoolVarP(&follow, "follow", "f", false, "print subscription changes as they happen")
			flagSet.BoolVar(&asJSON, "json", false, "print a JSON array (or JSON lines with --follow)")
			flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the exchange to answer")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("at most one prefix, got %d", len(args))
			}
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			cfg, logger, err := bus.load()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			if follow {
				a, _, err := newAgent(cfg, logger, followSubscriptions(os.Stdout, cli.NewStyles(os.Stdout), prefix, asJSON)...)
				if err != nil {
					return err
				}
				return runAgent(ctx, a, nil)
			}

			var (
				a       *agent.Agent
				result  []string
				failure error
			)
			query := listQueryTopic(prefix)
			cookie := uuid.NewString()
			// Only the reply to this query carries the cookie.
			reply := agent.Subscription{
				Prefix:    query,
				Predicate: match.Exact(query).Predicate,
				Headers:   match.RequireHeaders(map[string]any{headers.Cookie: cookie}),
				Callback: func(_ string, _ *headers.Headers, parts [][]byte, _ match.Result) error {
					result = make([]string, len(parts))
					for i, part := range parts {
						result[i] = string(part)
					}
					a.Close()
					return nil
				},
			}
			a, publisher, err := newAgent(cfg, logger, reply)
			if err != nil {
				return err
			}

			start := func() error {
				a.Timer(timeout, func() error {
					failure = fmt.Errorf("no answer from the exchange at %s within %v", cfg.SubscribeAddress(), timeout)
					a.Close()
					return nil
				})
				// The query is sent once the exchange is known to
				// forward to this agent, or the reply could be lost.
				_, err := publisher.PingBack(func(ok bool) {
					if !ok {
						return
					}
					h := headers.New()
					h.Set(headers.Cookie, cookie)
					if err := publisher.Publish(query, h); err != nil {
						failure = err
						a.Close()
					}
				}, timeout, 100*time.Millisecond)
				return err
			}
			if err := runAgent(ctx, a, start); err != nil {
				return err
			}
			if failure != nil {
				return failure
			}
			if result == nil {
				return errors.New("interrupted before the exchange answered")
			}
			return printPrefixes(os.Stdout, result, asJSON)
		},
	}
}

// listQueryTopic returns the list query topic for prefix.
func listQueryTopic(prefix string) string {
	if prefix == "" {
		return topics.SubscriptionsList
	}
	return topics.SubscriptionsList + "/" + prefix
}

func printPrefixes(w io.Writer, prefixes []string, asJSON bool) error {
	if asJSON {
		return cli.WriteJSON(w, prefixes)
	}
	for _, prefix := range prefixes {
		if prefix == "" {
			prefix = `""`
		}
		if _, err := fmt.Fprintln(w, prefix); err != nil {
			return err
		}
	}
	return nil
}

// subscriptionEvent is the --follow --json rendering of an announcement.
type subscriptionEvent struct {
	Added  bool   `json:"added"`
	Prefix string `json:"prefix"`
}

// followSubscriptions returns subscriptions that print announcements
// for prefixes starting with filter.
func followSubscriptions(w io.Writer, styles cli.Styles, filter string, asJSON bool) []agent.Subscription {
	handler := func(added bool) agent.Callback {
		base := topics.SubscriptionChange(added, "")
		return func(topic string, _ *headers.Headers, _ [][]byte, _ match.Result) error {
			prefix := strings.TrimPrefix(topic, base)
			if asJSON {
				return cli.WriteJSON(w, subscriptionEvent{Added: added, Prefix: prefix})
			}
			line := styles.Bad.Render("- " + prefix)
			if added {
				line = styles.Good.Render("+ " + prefix)
			}
			_, err := fmt.Fprintln(w, line)
			return err
		}
	}
	return []agent.Subscription{
		agent.On(match.Start(topics.SubscriptionChange(true, filter)), handler(true)),
		agent.On(match.Start(topics.SubscriptionChange(false, filter)), handler(false)),
	}
}
