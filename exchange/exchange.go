// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/gridbus/lib/netutil"
	"github.com/bureau-foundation/gridbus/lib/topics"
	"github.com/bureau-foundation/gridbus/transport"
)

// DefaultQueueLength is the per-subscriber send queue length.
const DefaultQueueLength = 1024

// Config configures an Exchange.
type Config struct {
	// PublishAddress is where pushers connect.
	PublishAddress transport.Address

	// SubscribeAddress is where subscribers connect.
	SubscribeAddress transport.Address

	// QueueLength bounds each subscriber's send queue. Defaults to
	// DefaultQueueLength.
	QueueLength int

	// Compression applies to units the exchange generates itself:
	// subscription announcements and list replies.
	Compression transport.Compression

	// Logger receives structured output. Per-connection events are
	// logged at Debug. Defaults to slog.Default().
	Logger *slog.Logger
}

// Stats counts units handled since Start.
type Stats struct {
	Received    uint64
	Delivered   uint64
	Dropped     uint64
	Malformed   uint64
	Subscribers int
	Prefixes    int
}

// Exchange routes units from pushers to subscribers.
type Exchange struct {
	config Config
	logger *slog.Logger

	publishListener   net.Listener
	subscribeListener net.Listener
	cancel            context.CancelFunc
	done              chan struct{}
	connections       sync.WaitGroup
	connectionCount   atomic.Int64

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	holders     map[string]int
	open        map[net.Conn]struct{}

	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// New returns an exchange for config. Call Start to begin serving.
func New(config Config) (*Exchange, error) {
	if config.PublishAddress.IsZero() {
		return nil, errors.New("exchange: PublishAddress is required")
	}
	if config.SubscribeAddress.IsZero() {
		return nil, errors.New("exchange: SubscribeAddress is required")
	}
	if config.QueueLength <= 0 {
		config.QueueLength = DefaultQueueLength
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchange{
		config:      config,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
		holders:     make(map[string]int),
		open:        make(map[net.Conn]struct{}),
	}, nil
}

// Start binds both endpoints and serves in the background until Stop
// is called or ctx is cancelled. It returns once both listeners are
// accepting.
func (e *Exchange) Start(ctx context.Context) error {
	publishListener, err := transport.Listen(e.config.PublishAddress)
	if err != nil {
		return fmt.Errorf("exchange: publish endpoint: %w", err)
	}
	subscribeListener, err := transport.Listen(e.config.SubscribeAddress)
	if err != nil {
		publishListener.Close()
		return fmt.Errorf("exchange: subscribe endpoint: %w", err)
	}
	e.publishListener = publishListener
	e.subscribeListener = subscribeListener

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	var accepting sync.WaitGroup
	accepting.Add(2)
	go func() {
		defer accepting.Done()
		e.acceptLoop(ctx, publishListener, e.handlePublisher)
	}()
	go func() {
		defer accepting.Done()
		e.acceptLoop(ctx, subscribeListener, e.handleSubscriber)
	}()
	go func() {
		<-ctx.Done()
		publishListener.Close()
		subscribeListener.Close()
		e.closeConnections()
	}()
	go func() {
		defer close(e.done)
		accepting.Wait()
		e.connections.Wait()
	}()

	e.logger.Info("exchange started",
		"publish_address", e.PublishAddress().String(),
		"subscribe_address", e.SubscribeAddress().String(),
	)
	return nil
}

// PublishAddress returns the bound publish endpoint, with any
// kernel-assigned port. Zero before Start.
func (e *Exchange) PublishAddress() transport.Address {
	if e.publishListener == nil {
		return transport.Address{}
	}
	return transport.AddressOf(e.publishListener)
}

// SubscribeAddress returns the bound subscribe endpoint.
func (e *Exchange) SubscribeAddress() transport.Address {
	if e.subscribeListener == nil {
		return transport.Address{}
	}
	return transport.AddressOf(e.subscribeListener)
}

// Stop closes both listeners and every connection, and waits for all
// connection goroutines to exit.
func (e *Exchange) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.Wait()
}

// Wait blocks until the exchange has stopped.
func (e *Exchange) Wait() {
	if e.done != nil {
		<-e.done
	}
}

// Stats returns a snapshot of the exchange counters.
func (e *Exchange) Stats() Stats {
	e.mu.Lock()
	subscribers, prefixes := len(e.subscribers), len(e.holders)
	e.mu.Unlock()
	return Stats{
		Received:    e.received.Load(),
		Delivered:   e.delivered.Load(),
		Dropped:     e.dropped.Load(),
		Malformed:   e.malformed.Load(),
		Subscribers: subscribers,
		Prefixes:    prefixes,
	}
}

// Prefixes returns every prefix held by at least one subscriber,
// sorted.
func (e *Exchange) Prefixes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedPrefixesLocked("")
}

func (e *Exchange) sortedPrefixesLocked(start string) []string {
	prefixes := make([]string, 0, len(e.holders))
	for prefix := range e.holders {
		if strings.HasPrefix(prefix, start) {
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

func (e *Exchange) acceptLoop(ctx context.Context, listener net.Listener, handle func(net.Conn, int64)) {
	for {
		connection, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Error("accept failed", "error", err)
			continue
		}

		if !e.track(connection) {
			connection.Close()
			return
		}
		connectionID := e.connectionCount.Add(1)
		e.connections.Add(1)
		go func() {
			defer e.connections.Done()
			defer e.untrack(connection)
			handle(connection, connectionID)
		}()
	}
}

// track records an open connection so Stop can close it. It refuses
// connections accepted after shutdown began.
func (e *Exchange) track(connection net.Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open == nil {
		return false
	}
	e.open[connection] = struct{}{}
	return true
}

func (e *Exchange) untrack(connection net.Conn) {
	e.mu.Lock()
	if e.open != nil {
		delete(e.open, connection)
	}
	e.mu.Unlock()
	connection.Close()
}

func (e *Exchange) closeConnections() {
	e.mu.Lock()
	open := e.open
	e.open = nil
	e.mu.Unlock()
	for connection := range open {
		connection.Close()
	}
}

// handlePublisher reads units from a pusher and routes them.
func (e *Exchange) handlePublisher(connection net.Conn, connectionID int64) {
	logger := e.logger.With("connection_id", connectionID, "role", "publisher")
	logger.Debug("publisher connected")
	for {
		unit, err := transport.ReadUnit(connection)
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				logger.Warn("publisher read failed", "error", err)
			}
			logger.Debug("publisher disconnected")
			return
		}
		e.received.Add(1)
		if err := e.route(unit); err != nil {
			e.malformed.Add(1)
			logger.Warn("dropping unit", "error", err)
		}
	}
}

// route forwards unit to every subscriber whose prefixes match its
// topic, rewriting subscription list queries first.
func (e *Exchange) route(unit transport.Unit) error {
	frames, err := unit.Frames()
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return &transport.ProtocolError{Reason: "unit has no frames"}
	}
	topic := string(frames[0])

	if start, ok := topics.ListQueryPrefix(topic); ok {
		unit, err = e.listReply(frames, start)
		if err != nil {
			return err
		}
	}
	e.broadcast(topic, unit.Bytes())
	return nil
}

// listReply keeps the query's topic and headers frames and appends the
// matching prefixes.
func (e *Exchange) listReply(frames [][]byte, start string) (transport.Unit, error) {
	reply := make([][]byte, 0, 2)
	reply = append(reply, frames[0])
	if len(frames) > 1 {
		reply = append(reply, frames[1])
	} else {
		reply = append(reply, []byte("{}"))
	}
	e.mu.Lock()
	prefixes := e.sortedPrefixesLocked(start)
	e.mu.Unlock()
	for _, prefix := range prefixes {
		reply = append(reply, []byte(prefix))
	}
	return transport.NewUnit(reply, e.config.Compression)
}

// broadcast queues wire for every subscriber interested in topic. The
// shutdown topic is never dropped: a full queue loses its oldest units
// instead.
func (e *Exchange) broadcast(topic string, wire []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.subscribers {
		if !s.wants(topic) {
			continue
		}
		if topic == topics.PlatformShutdown {
			if evicted := s.enqueueEvicting(wire); evicted > 0 {
				e.dropped.Add(uint64(evicted))
				s.logger.Debug("subscriber queue full, evicted units for shutdown", "evicted", evicted)
			}
			e.delivered.Add(1)
			continue
		}
		if s.enqueue(wire) {
			e.delivered.Add(1)
		} else {
			e.dropped.Add(1)
			s.logger.Debug("subscriber queue full, dropping unit", "topic", topic)
		}
	}
}

// announce broadcasts a subscription add or remove notice.
func (e *Exchange) announce(added bool, prefix string) {
	topic := topics.SubscriptionChange(added, prefix)
	unit, err := transport.NewUnit([][]byte{[]byte(topic)}, e.config.Compression)
	if err != nil {
		e.logger.Error("encoding subscription announcement", "topic", topic, "error", err)
		return
	}
	e.broadcast(topic, unit.Bytes())
}
