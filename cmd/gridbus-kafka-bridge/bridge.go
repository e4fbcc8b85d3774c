// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/lib/config"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
)

const (
	// topicHeader carries the bus topic on outbound records so a
	// bridge reading them back can restore the envelope.
	topicHeader = "gridbus-topic"

	// viaHeader marks bus messages published from Kafka records. The
	// outbound direction skips them so a record never loops back.
	viaHeader = "Kafka-Bridge"

	// outboundQueueLength bounds the records waiting for the writer.
	outboundQueueLength = 1024

	// writeBatch is the most records handed to one WriteMessages call.
	writeBatch = 100

	// writeTimeout bounds each WriteMessages call, including the
	// final flush after shutdown.
	writeTimeout = 10 * time.Second
)

// kafkaWriter is the part of *kafka.Writer the bridge uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// kafkaReader is the part of *kafka.Reader the bridge uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// envelope is the JSON value of an outbound record.
type envelope struct {
	Topic   string           `json:"topic"`
	Headers *headers.Headers `json:"headers"`
	Parts   [][]byte         `json:"parts"`
}

// counters track forwarding in both directions.
type counters struct {
	forwarded atomic.Uint64 // bus -> kafka, written
	dropped   atomic.Uint64 // bus -> kafka, queue full
	failed    atomic.Uint64 // bus -> kafka, write error
	consumed  atomic.Uint64 // kafka -> bus, published
	rejected  atomic.Uint64 // kafka -> bus, publish error
}

// Bridge forwards bus messages under the configured prefixes to a
// Kafka topic and, when an inbound topic is configured, publishes Kafka
// records on the bus.
type Bridge struct {
	config    config.KafkaConfig
	logger    *slog.Logger
	agent     *agent.Agent
	publisher *agent.Publisher
	writer    kafkaWriter
	reader    kafkaReader
	outbound  chan kafka.Message
	counters  counters
}

// NewBridge builds the bridge agent. reader may be nil to disable the
// inbound direction.
func NewBridge(cfg *config.Config, logger *slog.Logger, writer kafkaWriter, reader kafkaReader) (*Bridge, error) {
	if writer == nil && len(cfg.Kafka.Prefixes) > 0 {
		return nil, errors.New("kafka bridge: prefixes configured without a writer")
	}
	b := &Bridge{
		config:   cfg.Kafka,
		logger:   logger,
		writer:   writer,
		reader:   reader,
		outbound: make(chan kafka.Message, outboundQueueLength),
	}

	agentConfig := cfg.AgentConfig(logger)
	if agentConfig.Name == "" {
		agentConfig.Name = "gridbus-kafka-bridge"
	}
	for _, prefix := range cfg.Kafka.Prefixes {
		agentConfig.Subscriptions = append(agentConfig.Subscriptions, agent.On(match.Start(prefix), b.forward))
	}
	if interval := time.Duration(cfg.Kafka.StatsInterval); interval > 0 {
		agentConfig.Periodics = append(agentConfig.Periodics, agent.Periodic{
			Period: interval,
			Func: func() error {
				b.logStats("kafka bridge stats")
				return nil
			},
		})
	}

	var err error
	if b.agent, err = agent.New(agentConfig); err != nil {
		return nil, err
	}
	if b.publisher, err = agent.NewPublisher(b.agent, agent.PublisherConfig{}); err != nil {
		return nil, err
	}
	return b, nil
}

// Agent returns the bus agent the bridge runs on.
func (b *Bridge) Agent() *agent.Agent { return b.agent }

// Run forwards in both directions until ctx is cancelled or the bus
// shuts down, then flushes queued records and closes the Kafka clients.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	if b.writer != nil {
		workers.Go(b.writeLoop)
	}
	if b.reader != nil {
		workers.Go(func() { b.readLoop(ctx) })
	}

	runErr := b.agent.Run(ctx)

	// The loop goroutine has exited, so nothing sends on outbound.
	cancel()
	close(b.outbound)
	workers.Wait()
	b.logStats("kafka bridge stopped")

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if b.writer != nil {
		if err := b.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing kafka writer: %w", err))
		}
	}
	if b.reader != nil {
		if err := b.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing kafka reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

// forward is the bus callback for every configured prefix. It runs on
// the agent loop and never blocks on Kafka.
func (b *Bridge) forward(topic string, h *headers.Headers, parts [][]byte, _ match.Result) error {
	if h.Contains(viaHeader) {
		return nil
	}
	value, err := json.Marshal(envelope{Topic: topic, Headers: h, Parts: parts})
	if err != nil {
		return fmt.Errorf("encoding %s for kafka: %w", topic, err)
	}
	message := kafka.Message{
		Topic:   b.config.OutboundTopic,
		Key:     []byte(topic),
		Value:   value,
		Headers: []kafka.Header{{Key: topicHeader, Value: []byte(topic)}},
		Time:    b.agent.Clock().Now(),
	}
	select {
	case b.outbound <- message:
	default:
		if b.counters.dropped.Add(1) == 1 {
			b.logger.Warn("kafka outbound queue full, dropping", "topic", topic)
		}
	}
	return nil
}

// writeLoop drains outbound in batches until it is closed.
func (b *Bridge) writeLoop() {
	batch := make([]kafka.Message, 0, writeBatch)
	for message := range b.outbound {
		batch = append(batch[:0], message)
	fill:
		for len(batch) < writeBatch {
			select {
			case next, ok := <-b.outbound:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		b.write(batch)
	}
}

func (b *Bridge) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := b.writer.WriteMessages(ctx, batch...); err != nil {
		b.counters.failed.Add(uint64(len(batch)))
		b.logger.Error("kafka write failed",
			"topic", b.config.OutboundTopic,
			"records", len(batch),
			"error", err,
		)
		return
	}
	b.counters.forwarded.Add(uint64(len(batch)))
}

// readLoop fetches inbound records, publishes each on the agent loop,
// and commits it once published.
func (b *Bridge) readLoop(ctx context.Context) {
	for {
		record, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Error("kafka fetch failed", "topic", b.config.InboundTopic, "error", err)
			}
			return
		}

		published := make(chan error, 1)
		if err := b.agent.Submit(func() { published <- b.publishRecord(record) }); err != nil {
			return
		}
		select {
		case err = <-published:
		case <-ctx.Done():
			return
		}
		if err != nil {
			b.counters.rejected.Add(1)
			b.logger.Warn("publishing kafka record failed",
				"partition", record.Partition,
				"offset", record.Offset,
				"error", err,
			)
			continue
		}
		b.counters.consumed.Add(1)
		if err := b.reader.CommitMessages(ctx, record); err != nil && ctx.Err() == nil {
			b.logger.Warn("kafka commit failed", "offset", record.Offset, "error", err)
		}
	}
}

// publishRecord publishes record under the bus prefix. Records written
// by a bridge are unwrapped to their original topic, headers and parts;
// any other record becomes one part keyed by the record key.
func (b *Bridge) publishRecord(record kafka.Message) error {
	topic, h, parts := b.translate(record)
	return b.publisher.Publish(topic, h, parts...)
}

func (b *Bridge) translate(record kafka.Message) (string, *headers.Headers, [][]byte) {
	for _, header := range record.Headers {
		if header.Key != topicHeader {
			continue
		}
		var wrapped envelope
		if err := json.Unmarshal(record.Value, &wrapped); err == nil && wrapped.Topic != "" {
			h := wrapped.Headers
			if h == nil {
				h = headers.New()
			}
			h.Set(viaHeader, b.agent.Name())
			return b.config.BusPrefix + wrapped.Topic, h, wrapped.Parts
		}
	}

	h := headers.New()
	for _, header := range record.Headers {
		h.Set(header.Key, string(header.Value))
	}
	h.Set("Kafka-Topic", record.Topic)
	h.Set("Kafka-Partition", record.Partition)
	h.Set("Kafka-Offset", strconv.FormatInt(record.Offset, 10))
	h.Set(viaHeader, b.agent.Name())

	key := string(record.Key)
	if key == "" {
		key = record.Topic
	}
	return b.config.BusPrefix + key, h, [][]byte{record.Value}
}

func (b *Bridge) logStats(message string) {
	b.logger.Info(message,
		"forwarded", b.counters.forwarded.Load(),
		"dropped", b.counters.dropped.Load(),
		"failed", b.counters.failed.Load(),
		"consumed", b.counters.consumed.Load(),
		"rejected", b.counters.rejected.Load(),
		"queued", len(b.outbound),
	)
}
