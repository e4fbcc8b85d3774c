// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// gridbus-kafka-bridge connects a gridbus exchange to Kafka. Messages
// on the configured bus prefixes are written to kafka.outbound_topic as
// JSON envelopes keyed by bus topic. Records read from
// kafka.inbound_topic are published on the bus under kafka.bus_prefix.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gridbus/lib/config"
	"github.com/bureau-foundation/gridbus/lib/process"
	"github.com/bureau-foundation/gridbus/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		brokers     []string
		prefixes    []string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("gridbus-kafka-bridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default $"+config.EnvironmentVariable+")")
	flagSet.StringSliceVar(&brokers, "brokers", nil, "bootstrap brokers, overriding kafka.brokers")
	flagSet.StringSliceVar(&prefixes, "prefix", nil, "bus prefix to forward, overriding kafka.prefixes (repeatable)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			fmt.Fprintf(os.Stderr, "Usage: gridbus-kafka-bridge [flags]\n\n%s", flagSet.FlagUsages())
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("gridbus-kafka-bridge %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	if len(prefixes) > 0 {
		cfg.Kafka.Prefixes = prefixes
	}
	if err := validateKafka(cfg.Kafka); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	var writer kafkaWriter
	if len(cfg.Kafka.Prefixes) > 0 {
		writer = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.OutboundTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}
	var reader kafkaReader
	if cfg.Kafka.InboundTopic != "" {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.InboundTopic,
			GroupID:  cfg.Kafka.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
	}

	bridge, err := NewBridge(cfg, logger, writer, reader)
	if err != nil {
		return err
	}
	logger.Info("kafka bridge starting",
		"version", version.Info(),
		"brokers", cfg.Kafka.Brokers,
		"prefixes", cfg.Kafka.Prefixes,
		"outbound_topic", cfg.Kafka.OutboundTopic,
		"inbound_topic", cfg.Kafka.InboundTopic,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return bridge.Run(ctx)
}

// validateKafka checks the settings the bridge needs beyond what
// config.Validate covers.
func validateKafka(k config.KafkaConfig) error {
	var errs []error
	if len(k.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is empty"))
	}
	if len(k.Prefixes) > 0 && k.OutboundTopic == "" {
		errs = append(errs, errors.New("kafka.outbound_topic is required when kafka.prefixes is set"))
	}
	if k.InboundTopic != "" && k.GroupID == "" {
		errs = append(errs, errors.New("kafka.group_id is required when kafka.inbound_topic is set"))
	}
	if len(k.Prefixes) == 0 && k.InboundTopic == "" {
		errs = append(errs, errors.New("nothing to bridge: set kafka.prefixes, kafka.inbound_topic, or both"))
	}
	return errors.Join(errs...)
}
