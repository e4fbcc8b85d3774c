// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/gridbus/lib/clock"
	"github.com/bureau-foundation/gridbus/lib/reactor"
	"github.com/bureau-foundation/gridbus/lib/sched"
	"github.com/bureau-foundation/gridbus/lib/topics"
	"github.com/bureau-foundation/gridbus/transport"
)

// Agent is a single-goroutine pub/sub participant. Everything except
// Submit, Stop, State and Closed must be called from the goroutine
// that runs the loop.
type Agent struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	subscriber *transport.Subscriber
	reactor    *reactor.Reactor
	monotonic  sched.Queue
	wall       sched.Queue

	prefixes map[string][]*handler
	owners   map[SubscriptionID]string
	nextID   SubscriptionID

	wake      *wakePipe
	injectMu  sync.Mutex
	injected  []func()
	injectEnd bool

	reconnect *sched.Event
	finishers []func() error

	state atomic.Int32
	// closed mirrors subscriber.Closed for readers on other goroutines.
	closed atomic.Bool
}

// New creates an agent in StateCreated. It subscribes the transport to
// the platform shutdown topic and registers config.Subscriptions.
func New(config Config) (*Agent, error) {
	if config.SubscribeAddress.IsZero() {
		return nil, errors.New("agent: SubscribeAddress is required")
	}
	config.applyDefaults()

	wake, err := newWakePipe()
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	logger := config.Logger
	if config.Name != "" {
		logger = logger.With("agent", config.Name)
	}

	a := &Agent{
		config:     config,
		logger:     logger,
		clock:      config.Clock,
		subscriber: transport.NewSubscriber(config.SubscribeAddress),
		reactor:    reactor.New(),
		prefixes:   make(map[string][]*handler),
		owners:     make(map[SubscriptionID]string),
		wake:       wake,
	}
	a.reactor.Register(a.subscriber, a.handleReadable, nil)
	a.reactor.Register(a.wake, a.runInjected, nil)

	// The shutdown interest is never removed, whatever handlers come
	// and go on the same topic.
	if err := a.subscriber.Subscribe(topics.PlatformShutdown); err != nil {
		wake.close()
		return nil, fmt.Errorf("agent: subscribing to shutdown topic: %w", err)
	}

	for i, subscription := range config.Subscriptions {
		if subscription.Callback == nil {
			wake.close()
			return nil, fmt.Errorf("agent: subscription %d (%q) has no callback", i, subscription.Prefix)
		}
		a.subscribe(subscription)
	}
	return a, nil
}

// Name returns the configured agent name.
func (a *Agent) Name() string { return a.config.Name }

// Logger returns the agent's logger.
func (a *Agent) Logger() *slog.Logger { return a.logger }

// Clock returns the agent's clock.
func (a *Agent) Clock() clock.Clock { return a.clock }

// Config returns the agent's configuration with defaults applied.
func (a *Agent) Config() Config { return a.config }

// State returns the lifecycle stage. Safe from any goroutine.
func (a *Agent) State() State { return State(a.state.Load()) }

// Closed reports whether the subscriber transport has been closed,
// which ends Loop. Safe from any goroutine.
func (a *Agent) Closed() bool { return a.closed.Load() }

func (a *Agent) transition(from, to State) error {
	if !a.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s required, agent is %s", ErrInvalidState, from, a.State())
	}
	return nil
}

// Setup starts the declarative periodic timers and connects the
// subscriber transport.
func (a *Agent) Setup() error {
	if err := a.transition(StateCreated, StateSetup); err != nil {
		return err
	}
	for _, periodic := range a.config.Periodics {
		a.PeriodicTimer(periodic.Period, periodic.Func)
	}
	if err := a.subscriber.Connect(); err != nil {
		return fmt.Errorf("agent: connecting subscriber: %w", err)
	}
	a.logger.Info("agent connected",
		"subscribe_address", a.config.SubscribeAddress.String(),
		"prefixes", len(a.prefixes),
		"periodics", len(a.config.Periodics),
	)
	return nil
}

// Loop steps the agent until its subscriber transport is closed. Under
// the Propagate policy a handler or timer error ends the loop early and
// is returned.
func (a *Agent) Loop() error {
	if err := a.transition(StateSetup, StateRunning); err != nil {
		return err
	}
	for !a.Closed() {
		if _, err := a.Step(Forever); err != nil {
			return err
		}
	}
	return nil
}

// Step polls once and fires every ready callback, returning how many
// fired. Zero means timeout elapsed with nothing ready.
func (a *Agent) Step(timeout time.Duration) (int, error) {
	events, err := a.Poll(timeout)
	if err != nil {
		return 0, err
	}
	for i, event := range events {
		if err := event.Fire(); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// Poll runs due timers on both clocks and waits for transport
// readiness, re-checking timers until something is ready or timeout
// has elapsed on the monotonic clock. A negative timeout waits
// forever.
func (a *Agent) Poll(timeout time.Duration) ([]reactor.Event, error) {
	var elapsed time.Duration
	for {
		started := a.clock.Monotonic()
		if err := a.runTimers(); err != nil {
			return nil, err
		}

		wait := a.config.LoopInterval
		if timeout >= 0 {
			wait = min(wait, timeout-elapsed)
		}
		if delay, ok := a.monotonic.Delay(a.clock.Monotonic()); ok {
			wait = min(wait, delay)
		}
		if delay, ok := a.wall.Delay(a.clock.Now()); ok {
			wait = min(wait, delay)
		}
		wait = max(wait, 0)

		events, err := a.reactor.Poll(wait)
		if err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
		if len(events) > 0 {
			return events, nil
		}

		elapsed += a.clock.Monotonic().Sub(started)
		if timeout >= 0 && elapsed >= timeout {
			return nil, nil
		}
	}
}

// runTimers executes every due event on the monotonic queue, then on
// the wall queue.
func (a *Agent) runTimers() error {
	if err := a.drain(&a.monotonic, a.clock.Monotonic); err != nil {
		return err
	}
	return a.drain(&a.wall, a.clock.Now)
}

func (a *Agent) drain(queue *sched.Queue, now func() time.Time) error {
	for {
		err := queue.Execute(now())
		if err == nil {
			return nil
		}
		if a.config.ErrorPolicy == Propagate {
			return fmt.Errorf("agent: timer: %w", err)
		}
		a.logger.Error("timer failed", "error", err)
	}
}

// Close closes the subscriber transport, ending Loop after the current
// step. Call it from the loop goroutine; use Stop elsewhere.
func (a *Agent) Close() error {
	a.closed.Store(true)
	return a.subscriber.Close()
}

// Stop asks the loop goroutine to close the agent. Safe from any
// goroutine; a no-op once the agent has finished.
func (a *Agent) Stop() {
	if err := a.Submit(func() { a.Close() }); err != nil && !errors.Is(err, ErrStopped) {
		a.logger.Warn("stop request failed", "error", err)
	}
}

// OnFinish registers fn to run during Finish, in registration order.
func (a *Agent) OnFinish(fn func() error) {
	a.finishers = append(a.finishers, fn)
}

// Finish disconnects the transport and releases the agent's
// descriptors. It may be called from StateSetup or StateRunning.
func (a *Agent) Finish() error {
	current := a.State()
	if current != StateSetup && current != StateRunning {
		return fmt.Errorf("%w: cannot finish a %s agent", ErrInvalidState, current)
	}
	a.state.Store(int32(StateFinishing))

	a.reconnect.Cancel()
	var errs []error
	for _, fn := range a.finishers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	a.injectMu.Lock()
	a.injectEnd = true
	a.injected = nil
	a.injectMu.Unlock()
	a.reactor.Unregister(a.wake)
	if err := a.wake.close(); err != nil {
		errs = append(errs, err)
	}

	a.state.Store(int32(StateStopped))
	a.logger.Info("agent stopped")
	return errors.Join(errs...)
}

// Run sets the agent up, loops until the shutdown topic arrives or ctx
// is cancelled, and finishes.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Setup(); err != nil {
		if a.State() == StateSetup {
			err = errors.Join(err, a.Finish())
		}
		return err
	}
	stop := context.AfterFunc(ctx, a.Stop)
	defer stop()

	loopErr := a.Loop()
	return errors.Join(loopErr, a.Finish())
}

// scheduleReconnect arranges for the subscriber to reconnect after the
// reconnect interval, repeating until it succeeds or the agent closes.
func (a *Agent) scheduleReconnect() {
	if a.reconnect != nil {
		return
	}
	a.reconnect = a.Timer(a.config.ReconnectInterval, func() error {
		a.reconnect = nil
		if a.Closed() || a.subscriber.Connected() {
			return nil
		}
		if err := a.subscriber.Connect(); err != nil {
			a.logger.Warn("subscriber reconnect failed", "error", err)
			a.scheduleReconnect()
			return nil
		}
		a.logger.Info("subscriber reconnected", "prefixes", len(a.subscriber.Interests()))
		return nil
	})
}
