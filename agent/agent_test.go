// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
	"github.com/bureau-foundation/gridbus/lib/testutil"
	"github.com/bureau-foundation/gridbus/lib/topics"
	"github.com/bureau-foundation/gridbus/transport"
)

// recorder collects the topics delivered to a callback.
type recorder struct {
	topics  []string
	results []match.Result
}

func (r *recorder) callback(topic string, _ *headers.Headers, _ [][]byte, result match.Result) error {
	r.topics = append(r.topics, topic)
	r.results = append(r.results, result)
	return nil
}

func (r *recorder) saw(topic string) func() bool {
	return func() bool { return slices.Contains(r.topics, topic) }
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Error("New without SubscribeAddress succeeded")
	}
	_, err := New(Config{
		SubscribeAddress: transport.MustParseAddress("tcp://127.0.0.1:1"),
		Subscriptions:    []Subscription{{Prefix: "x"}},
	})
	if err == nil {
		t.Error("New with a callback-less subscription succeeded")
	}
}

func TestNewSubscribesShutdownTopic(t *testing.T) {
	t.Parallel()
	a, err := New(Config{SubscribeAddress: transport.MustParseAddress("tcp://127.0.0.1:1"), Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.wake.close()
	if !a.subscriber.Subscribed(topics.PlatformShutdown) {
		t.Error("shutdown topic missing from interest set")
	}
	if a.State() != StateCreated {
		t.Errorf("State = %s, want created", a.State())
	}
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()
	_, at := startExchange(t)
	a, err := New(Config{SubscribeAddress: at.subscribe, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Loop(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Loop before Setup = %v, want ErrInvalidState", err)
	}
	if err := a.Finish(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Finish before Setup = %v, want ErrInvalidState", err)
	}
	if err := a.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := a.Setup(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Setup = %v, want ErrInvalidState", err)
	}
	if a.State() != StateSetup {
		t.Errorf("State = %s, want setup", a.State())
	}

	finished := false
	a.OnFinish(func() error { finished = true; return nil })
	if err := a.Finish(); err != nil {
		t.Fatal(err)
	}
	if !finished {
		t.Error("OnFinish callback not run")
	}
	if a.State() != StateStopped || !a.Closed() {
		t.Errorf("after Finish: state %s, closed %v", a.State(), a.Closed())
	}
	if err := a.Submit(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Finish = %v, want ErrStopped", err)
	}
}

func TestSetupFailsWithoutExchange(t *testing.T) {
	t.Parallel()
	at := newEndpoints(t)
	a, err := New(Config{SubscribeAddress: at.subscribe, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	err = a.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with no exchange listening")
	}
	if a.State() != StateStopped {
		t.Errorf("State = %s, want stopped", a.State())
	}
}

func TestPrefixDispatch(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, nil)
	var nested, broad recorder
	a.Subscribe("a/b", nested.callback, nil)
	a.Subscribe("a/", broad.callback, nil)
	awaitPrefixes(t, ex, "a/b", "a/")

	publisher := newPublisher(t, a)
	for _, topic := range []string{"a/x", "a/b/c", "a/b", "b/a/b", "a/b/end"} {
		if err := publisher.Publish(topic, nil); err != nil {
			t.Fatal(err)
		}
	}
	stepUntil(t, a, func() bool { return nested.saw("a/b/end")() && broad.saw("a/b/end")() })

	if want := []string{"a/b/c", "a/b", "a/b/end"}; !slices.Equal(nested.topics, want) {
		t.Errorf("a/b handler got %v, want %v", nested.topics, want)
	}
	if want := []string{"a/x", "a/b/c", "a/b", "a/b/end"}; !slices.Equal(broad.topics, want) {
		t.Errorf("a/ handler got %v, want %v", broad.topics, want)
	}
	if nested.results[0].Evaluated() {
		t.Errorf("result without predicate = %v, want None", nested.results[0])
	}
}

func TestUnsubscribeLeavesOtherHandlers(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, nil)
	var first, second recorder
	firstID := a.Subscribe("t", first.callback, nil)
	a.Subscribe("t", second.callback, nil)
	awaitPrefixes(t, ex, "t")

	if !a.Unsubscribe(firstID) {
		t.Fatal("Unsubscribe returned false for a live handler")
	}
	if a.Unsubscribe(firstID) {
		t.Error("second Unsubscribe returned true")
	}
	if a.UnsubscribeFrom("other", 2) {
		t.Error("UnsubscribeFrom with the wrong prefix returned true")
	}
	if a.HandlerCount("t") != 1 || !a.subscriber.Subscribed("t") {
		t.Fatalf("handlers %d, subscribed %v", a.HandlerCount("t"), a.subscriber.Subscribed("t"))
	}

	publisher := newPublisher(t, a)
	if err := publisher.Publish("t/1", nil); err != nil {
		t.Fatal(err)
	}
	stepUntil(t, a, second.saw("t/1"))
	if len(first.topics) != 0 {
		t.Errorf("unsubscribed handler received %v", first.topics)
	}

	if removed := a.UnsubscribeAll("t"); removed != 1 {
		t.Errorf("UnsubscribeAll removed %d, want 1", removed)
	}
	if a.subscriber.Subscribed("t") {
		t.Error("transport interest kept after last handler removed")
	}
}

func TestShutdownInterestSurvivesUnsubscribe(t *testing.T) {
	t.Parallel()
	_, at := startExchange(t)
	a := newAgent(t, at, nil)
	id := a.Subscribe(topics.PlatformShutdown, func(string, *headers.Headers, [][]byte, match.Result) error { return nil }, nil)
	a.Subscribe("x", func(string, *headers.Headers, [][]byte, match.Result) error { return nil }, nil)
	a.Unsubscribe(id)
	if removed := a.UnsubscribeEverything(); removed != 1 {
		t.Errorf("UnsubscribeEverything removed %d, want 1", removed)
	}
	if !a.subscriber.Subscribed(topics.PlatformShutdown) {
		t.Error("shutdown topic dropped from interest set")
	}
	if len(a.Prefixes()) != 0 {
		t.Errorf("Prefixes = %v, want none", a.Prefixes())
	}
}

func TestPredicateAndHeaderFilters(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	var globbed, filtered, sentinel recorder
	a := newAgent(t, at, func(c *Config) {
		c.Subscriptions = []Subscription{
			On(match.MustGlob("jobs/*/done"), globbed.callback),
			{
				Prefix:   "jobs/",
				Headers:  match.RequireHeaders(map[string]any{"priority": 5}),
				Callback: filtered.callback,
			},
			On(match.Exact("end"), sentinel.callback),
		}
	})
	awaitPrefixes(t, ex, "jobs/", "end")

	publisher := newPublisher(t, a)
	urgent := headers.New()
	urgent.Set("priority", 5)
	if err := publisher.Publish("jobs/build/done", urgent); err != nil {
		t.Fatal(err)
	}
	if err := publisher.Publish("jobs/build/started", nil); err != nil {
		t.Fatal(err)
	}
	if err := publisher.Publish("jobs/a/b/done", nil); err != nil {
		t.Fatal(err)
	}
	if err := publisher.Publish("end", nil); err != nil {
		t.Fatal(err)
	}
	stepUntil(t, a, sentinel.saw("end"))

	if want := []string{"jobs/build/done"}; !slices.Equal(globbed.topics, want) {
		t.Fatalf("glob handler got %v, want %v", globbed.topics, want)
	}
	captures, ok := globbed.results[0].Value().([]string)
	if !ok || !slices.Equal(captures, []string{"build"}) {
		t.Errorf("glob captures = %#v", globbed.results[0].Value())
	}
	if want := []string{"jobs/build/done"}; !slices.Equal(filtered.topics, want) {
		t.Errorf("header-filtered handler got %v, want %v", filtered.topics, want)
	}
}

func TestPublisherStampsHeaders(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, nil)
	var received *headers.Headers
	a.Subscribe("stamp", func(_ string, h *headers.Headers, _ [][]byte, _ match.Result) error {
		received = h
		return nil
	}, nil)
	awaitPrefixes(t, ex, "stamp")

	original := headers.New()
	original.Set("kind", "probe")
	publisher := newPublisher(t, a)
	if err := publisher.Publish("stamp", original); err != nil {
		t.Fatal(err)
	}
	if original.Contains(headers.Date) {
		t.Error("Publish modified the caller's headers")
	}
	stepUntil(t, a, func() bool { return received != nil })

	if from, _ := received.String(headers.From); from != "test-agent" {
		t.Errorf("From = %q, want test-agent", from)
	}
	date, _ := received.String(headers.Date)
	if _, err := time.Parse(time.RFC3339Nano, date); err != nil {
		t.Errorf("Date %q: %v", date, err)
	}
	if kind, _ := received.String("kind"); kind != "probe" {
		t.Errorf("kind = %q", kind)
	}
}

func TestPropagateReturnsHandlerError(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, nil)
	failure := errors.New("handler failed")
	a.Subscribe("fail", func(string, *headers.Headers, [][]byte, match.Result) error { return failure }, nil)
	awaitPrefixes(t, ex, "fail")

	publisher := newPublisher(t, a)
	if err := publisher.Publish("fail/now", nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := a.Step(10 * time.Millisecond)
		if err != nil {
			handlerErr, ok := isHandlerError(err)
			if !ok || !errors.Is(err, failure) {
				t.Fatalf("Step error = %v, want HandlerError wrapping failure", err)
			}
			if handlerErr.Topic != "fail/now" || handlerErr.Prefix != "fail" {
				t.Errorf("HandlerError = %+v", handlerErr)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("handler error never surfaced")
		}
	}
}

func TestContinuePolicySurvivesFailures(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, func(c *Config) { c.ErrorPolicy = Continue })
	var later recorder
	a.Subscribe("p", func(topic string, _ *headers.Headers, _ [][]byte, _ match.Result) error {
		if topic == "p/panic" {
			panic("boom")
		}
		return errors.New("always fails")
	}, nil)
	a.Subscribe("p", later.callback, nil)
	awaitPrefixes(t, ex, "p")

	timerRuns := 0
	a.Timer(0, func() error { timerRuns++; return errors.New("timer failed") })
	a.Timer(0, func() error { timerRuns++; return nil })

	publisher := newPublisher(t, a)
	for _, topic := range []string{"p/panic", "p/error"} {
		if err := publisher.Publish(topic, nil); err != nil {
			t.Fatal(err)
		}
	}
	stepUntil(t, a, later.saw("p/error"))
	if want := []string{"p/panic", "p/error"}; !slices.Equal(later.topics, want) {
		t.Errorf("second handler got %v, want %v", later.topics, want)
	}
	if timerRuns != 2 {
		t.Errorf("timer runs = %d, want 2", timerRuns)
	}
}

func TestShutdownClosesEvenWhenHandlerFails(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, nil)
	failure := errors.New("refusing to shut down")
	a.Subscribe(topics.PlatformShutdown, func(string, *headers.Headers, [][]byte, match.Result) error { return failure }, nil)
	awaitPrefixes(t, ex, topics.PlatformShutdown)

	result := runLoop(a)
	pusher := transport.NewPusher(at.publish, transport.CompressionNone)
	defer pusher.Close()
	if err := pusher.SendMessage(topics.PlatformShutdown, nil); err != nil {
		t.Fatal(err)
	}

	err := testutil.RequireReceive(t, result, 5*time.Second, "loop exit")
	if !errors.Is(err, failure) {
		t.Errorf("Loop = %v, want the handler error", err)
	}
	if !a.Closed() {
		t.Error("agent not closed after shutdown topic")
	}
}

func TestShutdownEndsLoop(t *testing.T) {
	t.Parallel()
	ex, at := startExchange(t)
	a := newAgent(t, at, func(c *Config) { c.ErrorPolicy = Continue })
	awaitPrefixes(t, ex, topics.PlatformShutdown)

	result := runLoop(a)
	pusher := transport.NewPusher(at.publish, transport.CompressionNone)
	defer pusher.Close()
	if err := pusher.SendMessage(topics.PlatformShutdown, nil); err != nil {
		t.Fatal(err)
	}
	if err := testutil.RequireReceive(t, result, 5*time.Second, "loop exit"); err != nil {
		t.Errorf("Loop = %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestSubmitRunsOnLoopGoroutine(t *testing.T) {
	t.Parallel()
	_, at := startExchange(t)
	a := newAgent(t, at, nil)
	result := runLoop(a)

	var order []int
	ran := make(chan struct{})
	for i := range 3 {
		err := a.Submit(func() {
			order = append(order, i)
			if i == 2 {
				close(ran)
			}
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	testutil.RequireClosed(t, ran, 5*time.Second, "submitted functions")
	a.Stop()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "loop exit"); err != nil {
		t.Errorf("Loop = %v", err)
	}
	if !slices.Equal(order, []int{0, 1, 2}) {
		t.Errorf("order = %v", order)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	_, at := startExchange(t)
	a, err := New(Config{SubscribeAddress: at.subscribe, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- a.Run(ctx) }()

	testutil.RequireEventually(t, 5*time.Second, func() bool {
		return a.State() == StateRunning
	}, "agent running")
	cancel()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Run exit"); err != nil {
		t.Errorf("Run = %v", err)
	}
	if a.State() != StateStopped {
		t.Errorf("State = %s, want stopped", a.State())
	}
}

func TestReconnectsAfterExchangeRestart(t *testing.T) {
	t.Parallel()
	at := newEndpoints(t)
	first := startExchangeAt(t, at)
	a := newAgent(t, at, nil)
	var received recorder
	a.Subscribe("r", received.callback, nil)
	awaitPrefixes(t, first, "r")

	first.Stop()
	stepUntil(t, a, func() bool { return !a.subscriber.Connected() }, "disconnect noticed")

	second := startExchangeAt(t, at)
	stepUntil(t, a, func() bool { return a.subscriber.Connected() }, "reconnected")
	awaitPrefixes(t, second, "r", topics.PlatformShutdown)

	publisher := newPublisher(t, a)
	if err := publisher.Publish("r/again", nil); err != nil {
		t.Fatal(err)
	}
	stepUntil(t, a, received.saw("r/again"))
	held := second.Prefixes()
	sort.Strings(held)
	if !slices.Equal(held, []string{topics.PlatformShutdown, "r"}) {
		t.Errorf("replayed prefixes = %v", held)
	}
}
