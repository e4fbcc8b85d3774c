// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/cmd/gridbus/cli"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
)

func watchCommand() *cli.Command {
	var (
		bus     busFlags
		glob    string
		count   int
		asJSON  bool
		maxPart int
	)
	return &cli.Command{
		Name:    "watch",
		Summary: "Print messages as they arrive",
		Description: `Subscribe to the given topic prefixes (everything when none are given)
and print each message. --match narrows delivery with a topic glob.`,
		Usage: "gridbus watch [flags] [prefix...]",
		Examples: []cli.Example{
			{Description: "Follow all alarms", Command: "gridbus watch alarms/"},
			{Description: "Supply-air temperatures on any air handler", Command: "gridbus watch --match 'meters/ahu-*/supply_air_temp'"},
			{Description: "Capture ten messages as JSON lines", Command: "gridbus watch --json -n 10 > capture.jsonl"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			bus.register(flagSet)
			flagSet.StringVar(&glob, "match", "", "topic glob (* ** ? [...])")
			flagSet.IntVarP(&count, "count", "n", 0, "exit after this many messages (0 = forever)")
			flagSet.BoolVar(&asJSON, "json", false, "print one JSON object per message")
			flagSet.IntVar(&maxPart, "max-part", 512, "truncate displayed parts to this many bytes (0 = no limit)")
			return flagSet
		},
		Run: func(args []string) error {
			var rules []match.Rule
			if glob != "" {
				if len(args) > 0 {
					return fmt.Errorf("--match and prefixes are mutually exclusive")
				}
				rule, err := match.Glob(glob)
				if err != nil {
					return err
				}
				rules = append(rules, rule)
			}
			for _, prefix := range args {
				rules = append(rules, match.Start(prefix))
			}
			if len(rules) == 0 {
				rules = append(rules, match.All())
			}

			cfg, logger, err := bus.load()
			if err != nil {
				return err
			}
			printer := &messagePrinter{out: os.Stdout, styles: cli.NewStyles(os.Stdout), json: asJSON, maxPart: maxPart}

			var a *agent.Agent
			seen := 0
			callback := func(topic string, h *headers.Headers, parts [][]byte, _ match.Result) error {
				if err := printer.print(topic, h, parts); err != nil {
					return err
				}
				seen++
				if count > 0 && seen >= count {
					a.Close()
				}
				return nil
			}
			subscriptions := make([]agent.Subscription, len(rules))
			for i, rule := range rules {
				subscriptions[i] = agent.On(rule, callback)
			}
			a, _, err = newAgent(cfg, logger, subscriptions...)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			return runAgent(ctx, a, nil)
		},
	}
}

// messagePrinter writes bus messages as styled text or JSON lines.
type messagePrinter struct {
	out     io.Writer
	styles  cli.Styles
	json    bool
	maxPart int
}

// watchRecord is the --json rendering of a message. Parts that are not
// valid UTF-8 are written as "base64:<data>".
type watchRecord struct {
	Topic   string           `json:"topic"`
	Headers *headers.Headers `json:"headers"`
	Parts   []string         `json:"parts"`
}

func (p *messagePrinter) print(topic string, h *headers.Headers, parts [][]byte) error {
	if h == nil {
		h = headers.New()
	}
	if p.json {
		record := watchRecord{Topic: topic, Headers: h, Parts: make([]string, len(parts))}
		for i, part := range parts {
			if utf8.Valid(part) {
				record.Parts[i] = string(part)
			} else {
				record.Parts[i] = "base64:" + base64.StdEncoding.EncodeToString(part)
			}
		}
		return cli.WriteJSON(p.out, record)
	}

	var b strings.Builder
	b.WriteString(p.styles.Topic.Render(topic))
	b.WriteByte('\n')
	for _, key := range h.Keys() {
		value, _ := h.Get(key)
		b.WriteString(p.styles.Header.Render(fmt.Sprintf("  %s: %v", key, value)))
		b.WriteByte('\n')
	}
	// A malformed Content-Type only loses highlighting.
	types, _ := h.ContentTypes()
	for i, part := range parts {
		b.WriteString(p.styles.Faint.Render(fmt.Sprintf("  [%d] ", i)))
		text := p.describePart(part)
		if p.styles.Colored && i < len(types) && isJSON(types[i]) && utf8.Valid(part) {
			b.WriteString(highlightJSON(text))
		} else {
			b.WriteString(p.styles.Part.Render(text))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(p.out, b.String())
	return err
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// highlightJSON returns text with ANSI syntax colouring, or text
// unchanged when the highlighter fails.
func highlightJSON(text string) string {
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, text, "json", "terminal256", "monokai"); err != nil {
		return text
	}
	return buffer.String()
}

func (p *messagePrinter) describePart(part []byte) string {
	if !utf8.Valid(part) {
		return fmt.Sprintf("<%d bytes binary>", len(part))
	}
	text := strings.TrimRight(string(part), "\n")
	if p.maxPart > 0 && len(text) > p.maxPart {
		cut := p.maxPart
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return fmt.Sprintf("%s… (%d bytes)", text[:cut], len(part))
	}
	return text
}
