// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/transport"
)

func publishCommand() *cli.Command {
	var (
		bus         busFlags
		headerArgs  []string
		asJSON      bool
		contentType string
	)
	return &cli.Command{
		Name:    "publish",
		Summary: "Publish one message",
		Description: `Publish a message with the given topic and body parts.

A part of "-" is read from standard input. Header values that parse as
JSON (numbers, booleans, arrays) are sent as JSON; anything else is sent
as a string.`,
		Usage: "gridbus publish [flags] <topic> [part...]",
		Examples: []cli.Example{
			{Description: "Publish a plain-text reading", Command: "gridbus publish meters/ahu-1/temperature 21.5"},
			{Description: "Publish a JSON document from a file", Command: "gridbus publish --json -H priority=2 alarms/ahu-1 - < alarm.json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
			bus.register(flagSet)
			flagSet.StringArrayVarP(&headerArgs, "header", "H", nil, "header as key=value (repeatable)")
			flagSet.BoolVar(&asJSON, "json", false, "require each part to be JSON and mark it application/json")
			flagSet.StringVar(&contentType, "content-type", "", "Content-Type recorded for every part")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return errors.New("a topic is required")
			}
			if asJSON && contentType != "" {
				return errors.New("--json and --content-type are mutually exclusive")
			}
			topic := args[0]
			if err := transport.ValidateTopic(topic); err != nil {
				return err
			}
			h, err := parseHeaderArgs(headerArgs)
			if err != nil {
				return err
			}
			parts, err := readParts(args[1:], os.Stdin)
			if err != nil {
				return err
			}

			cfg, _, err := bus.load()
			if err != nil {
				return err
			}
			return send(cfg, func(pusher *transport.Pusher) error {
				switch {
				case asJSON:
					documents := make([]any, len(parts))
					for i, part := range parts {
						if !json.Valid(part) {
							return fmt.Errorf("part %d is not valid JSON", i)
						}
						documents[i] = json.RawMessage(part)
					}
					return pusher.PublishJSON(topic, cliHeaders(h), documents...)
				case contentType != "":
					typed := make([]transport.Part, len(parts))
					for i, part := range parts {
						typed[i] = transport.Part{ContentType: contentType, Data: part}
					}
					return pusher.SendMessageEx(topic, cliHeaders(h), typed...)
				default:
					return pusher.SendMessage(topic, cliHeaders(h), parts...)
				}
			})
		},
	}
}

// parseHeaderArgs turns key=value arguments into headers. Values that
// are valid JSON keep their JSON type.
func parseHeaderArgs(args []string) (*headers.Headers, error) {
	h := headers.New()
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("header %q: want key=value", arg)
		}
		var value any = raw
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			value = decoded
		}
		h.Set(key, value)
	}
	return h, nil
}

// readParts returns each argument as a part, reading "-" from stdin.
// Standard input can be consumed only once.
func readParts(args []string, stdin io.Reader) ([][]byte, error) {
	parts := make([][]byte, 0, len(args))
	usedStdin := false
	for _, arg := range args {
		if arg != "-" {
			parts = append(parts, []byte(arg))
			continue
		}
		if usedStdin {
			return nil, errors.New(`"-" may appear only once`)
		}
		usedStdin = true
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading standard input: %w", err)
		}
		parts = append(parts, data)
	}
	return parts, nil
}
