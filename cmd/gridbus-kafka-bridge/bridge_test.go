// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bureau-foundation/gridbus/exchange"
	"github.com/bureau-foundation/gridbus/lib/config"
	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
	"github.com/bureau-foundation/gridbus/lib/testutil"
	"github.com/bureau-foundation/gridbus/transport"
)

type fakeWriter struct {
	written chan kafka.Message
	closed  atomic.Bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{written: make(chan kafka.Message, 64)}
}

func (w *fakeWriter) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	for _, message := range messages {
		select {
		case w.written <- message:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed.Store(true)
	return nil
}

type fakeReader struct {
	records   chan kafka.Message
	committed chan kafka.Message
	closed    atomic.Bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		records:   make(chan kafka.Message, 16),
		committed: make(chan kafka.Message, 16),
	}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case record := <-r.records:
		return record, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, messages ...kafka.Message) error {
	for _, message := range messages {
		r.committed <- message
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed.Store(true)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a configuration pointing at a fresh exchange.
func testConfig(t *testing.T) (*config.Config, *exchange.Exchange) {
	t.Helper()
	cfg := config.Default()
	cfg.Exchange.PublishAddress = testutil.SocketURL(t, "publish.sock")
	cfg.Exchange.SubscribeAddress = testutil.SocketURL(t, "subscribe.sock")
	cfg.Kafka.StatsInterval = 0

	ex, err := exchange.New(exchange.Config{
		PublishAddress:   cfg.PublishAddress(),
		SubscribeAddress: cfg.SubscribeAddress(),
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ex.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ex.Stop)
	return cfg, ex
}

// runBridge runs b until the test ends and returns a channel closed
// when Run returns.
func runBridge(t *testing.T, b *Bridge) (cancel context.CancelFunc, done <-chan struct{}, result *error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	var runErr error
	go func() {
		defer close(finished)
		runErr = b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return cancel, finished, &runErr
}

func awaitPrefix(t *testing.T, ex *exchange.Exchange, prefix string) {
	t.Helper()
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		return slices.Contains(ex.Prefixes(), prefix)
	}, "exchange holding %q", prefix)
}

func TestOutboundForwardsMatchingPrefixes(t *testing.T) {
	t.Parallel()

	cfg, ex := testConfig(t)
	cfg.Kafka.Prefixes = []string{"meters/"}
	cfg.Kafka.OutboundTopic = "plant-telemetry"
	writer := newFakeWriter()
	b, err := NewBridge(cfg, quietLogger(), writer, nil)
	if err != nil {
		t.Fatal(err)
	}
	cancel, done, result := runBridge(t, b)
	awaitPrefix(t, ex, "meters/")

	pusher := transport.NewPusher(cfg.PublishAddress(), transport.CompressionNone)
	defer pusher.Close()
	h := headers.New()
	h.Set("unit", "C")
	if err := pusher.SendMessage("alarms/ahu-1", nil, []byte("ignored")); err != nil {
		t.Fatal(err)
	}
	if err := pusher.SendMessage("meters/ahu-1/temp", h, []byte("21.5")); err != nil {
		t.Fatal(err)
	}

	record := testutil.RequireReceive(t, writer.written, 5*time.Second, "waiting for kafka record")
	if record.Topic != "plant-telemetry" || string(record.Key) != "meters/ahu-1/temp" {
		t.Errorf("record topic/key = %q/%q", record.Topic, record.Key)
	}
	if len(record.Headers) != 1 || record.Headers[0].Key != topicHeader || string(record.Headers[0].Value) != "meters/ahu-1/temp" {
		t.Errorf("record headers = %v", record.Headers)
	}
	var decoded envelope
	if err := json.Unmarshal(record.Value, &decoded); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if decoded.Topic != "meters/ahu-1/temp" || len(decoded.Parts) != 1 || string(decoded.Parts[0]) != "21.5" {
		t.Errorf("envelope = %+v", decoded)
	}
	if unit, _ := decoded.Headers.String("unit"); unit != "C" {
		t.Errorf("unit header = %q, want C", unit)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "bridge shutdown")
	if *result != nil {
		t.Errorf("Run: %v", *result)
	}
	if !writer.closed.Load() {
		t.Error("writer not closed")
	}
	if got := b.counters.forwarded.Load(); got != 1 {
		t.Errorf("forwarded = %d, want 1", got)
	}
}

func TestInboundPublishesAndCommits(t *testing.T) {
	t.Parallel()

	cfg, ex := testConfig(t)
	cfg.Kafka.InboundTopic = "plant-commands"
	cfg.Kafka.BusPrefix = "kafka/"
	reader := newFakeReader()
	b, err := NewBridge(cfg, quietLogger(), nil, reader)
	if err != nil {
		t.Fatal(err)
	}

	subscriber := transport.NewSubscriber(cfg.SubscribeAddress())
	defer subscriber.Close()
	if err := subscriber.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := subscriber.Subscribe("kafka/"); err != nil {
		t.Fatal(err)
	}
	awaitPrefix(t, ex, "kafka/")

	cancel, done, _ := runBridge(t, b)
	key := testutil.UniqueID("ahu/setpoint")
	testutil.RequireSend(t, reader.records, kafka.Message{
		Topic:     "plant-commands",
		Partition: 2,
		Offset:    41,
		Key:       []byte(key),
		Value:     []byte("19"),
		Headers:   []kafka.Header{{Key: "source", Value: []byte("scada")}},
	}, 5*time.Second, "queueing inbound record")

	message := receive(t, subscriber)
	if message.Topic != "kafka/"+key {
		t.Errorf("topic = %q", message.Topic)
	}
	if len(message.Parts) != 1 || string(message.Parts[0]) != "19" {
		t.Errorf("parts = %q", message.Parts)
	}
	if source, _ := message.Headers.String("source"); source != "scada" {
		t.Errorf("source header = %q", source)
	}
	if offset, _ := message.Headers.String("Kafka-Offset"); offset != "41" {
		t.Errorf("Kafka-Offset = %q", offset)
	}
	if !message.Headers.Contains(viaHeader) {
		t.Errorf("missing %s header", viaHeader)
	}

	committed := testutil.RequireReceive(t, reader.committed, 5*time.Second, "waiting for commit")
	if committed.Offset != 41 {
		t.Errorf("committed offset %d, want 41", committed.Offset)
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "bridge shutdown")
	if !reader.closed.Load() {
		t.Error("reader not closed")
	}
}

func TestTranslateUnwrapsEnvelopes(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Exchange.PublishAddress = "tcp://127.0.0.1:1"
	cfg.Exchange.SubscribeAddress = "tcp://127.0.0.1:2"
	cfg.Kafka.BusPrefix = "remote/"
	b, err := NewBridge(cfg, quietLogger(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	h := headers.New()
	h.Set("priority", 3)
	value, err := json.Marshal(envelope{Topic: "alarms/ahu-1", Headers: h, Parts: [][]byte{[]byte("high"), {0x00, 0x01}}})
	if err != nil {
		t.Fatal(err)
	}
	topic, translated, parts := b.translate(kafka.Message{
		Topic:   "plant-telemetry",
		Key:     []byte("alarms/ahu-1"),
		Value:   value,
		Headers: []kafka.Header{{Key: topicHeader, Value: []byte("alarms/ahu-1")}},
	})
	if topic != "remote/alarms/ahu-1" {
		t.Errorf("topic = %q", topic)
	}
	if priority, _ := translated.Get("priority"); fmt.Sprint(priority) != "3" {
		t.Errorf("priority = %v, want 3", priority)
	}
	if len(parts) != 2 || string(parts[0]) != "high" || parts[1][1] != 0x01 {
		t.Errorf("parts = %q", parts)
	}

	// A record without a key falls back to its Kafka topic.
	topic, _, parts = b.translate(kafka.Message{Topic: "raw", Value: []byte("x")})
	if topic != "remote/raw" || string(parts[0]) != "x" {
		t.Errorf("keyless record -> %q %q", topic, parts)
	}
}

func TestForwardSkipsBridgedAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Exchange.PublishAddress = "tcp://127.0.0.1:1"
	cfg.Exchange.SubscribeAddress = "tcp://127.0.0.1:2"
	cfg.Kafka.Prefixes = []string{""}
	b, err := NewBridge(cfg, quietLogger(), newFakeWriter(), nil)
	if err != nil {
		t.Fatal(err)
	}

	bridged := headers.New()
	bridged.Set(viaHeader, "other-bridge")
	if err := b.forward("kafka/ahu-1", bridged, nil, match.Result{}); err != nil {
		t.Fatal(err)
	}
	if len(b.outbound) != 0 {
		t.Fatalf("bridged message was queued")
	}

	for range outboundQueueLength + 3 {
		if err := b.forward("meters/x", headers.New(), [][]byte{[]byte("1")}, match.Result{}); err != nil {
			t.Fatal(err)
		}
	}
	if len(b.outbound) != outboundQueueLength {
		t.Errorf("queued %d, want %d", len(b.outbound), outboundQueueLength)
	}
	if got := b.counters.dropped.Load(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

func TestValidateKafka(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  config.KafkaConfig
		wantErr string
	}{
		{
			name:   "outbound only",
			config: config.KafkaConfig{Brokers: []string{"k:9092"}, Prefixes: []string{"meters/"}, OutboundTopic: "t"},
		},
		{
			name:   "inbound only",
			config: config.KafkaConfig{Brokers: []string{"k:9092"}, InboundTopic: "t", GroupID: "g"},
		},
		{
			name:    "no brokers",
			config:  config.KafkaConfig{Prefixes: []string{"x"}, OutboundTopic: "t"},
			wantErr: "kafka.brokers",
		},
		{
			name:    "inbound without group",
			config:  config.KafkaConfig{Brokers: []string{"k:9092"}, InboundTopic: "t"},
			wantErr: "kafka.group_id",
		},
		{
			name:    "prefixes without topic",
			config:  config.KafkaConfig{Brokers: []string{"k:9092"}, Prefixes: []string{"x"}},
			wantErr: "kafka.outbound_topic",
		},
		{
			name:    "nothing to do",
			config:  config.KafkaConfig{Brokers: []string{"k:9092"}},
			wantErr: "nothing to bridge",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := validateKafka(test.config)
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, test.wantErr)
			}
		})
	}
}

// receive polls subscriber until a message arrives.
func receive(t *testing.T, subscriber *transport.Subscriber) transport.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		message, err := subscriber.RecvMessage(false)
		if err == nil {
			return message
		}
		if !errors.Is(err, transport.ErrWouldBlock) {
			t.Fatalf("RecvMessage: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a message")
	return transport.Message{}
}
