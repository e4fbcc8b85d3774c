// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"strings"

	"github.com/bureau-foundation/gridbus/lib/headers"
	"github.com/bureau-foundation/gridbus/lib/match"
	"github.com/bureau-foundation/gridbus/lib/reactor"
	"github.com/bureau-foundation/gridbus/lib/topics"
	"github.com/bureau-foundation/gridbus/transport"
)

type handler struct {
	id        SubscriptionID
	predicate match.Predicate
	headers   match.HeaderTest
	callback  Callback
}

// Subscribe registers callback for every topic starting with prefix
// that predicate (if non-nil) matches. The first handler on a prefix
// adds the prefix to the transport's interest set.
func (a *Agent) Subscribe(prefix string, callback Callback, predicate match.Predicate) SubscriptionID {
	return a.subscribe(Subscription{Prefix: prefix, Predicate: predicate, Callback: callback})
}

// SubscribeRule is Subscribe with the prefix and predicate taken from
// rule.
func (a *Agent) SubscribeRule(rule match.Rule, callback Callback) SubscriptionID {
	return a.subscribe(On(rule, callback))
}

func (a *Agent) subscribe(subscription Subscription) SubscriptionID {
	if subscription.Callback == nil {
		panic("agent: Subscribe with nil callback")
	}
	a.nextID++
	id := a.nextID
	handlers := a.prefixes[subscription.Prefix]
	a.prefixes[subscription.Prefix] = append(handlers, &handler{
		id:        id,
		predicate: subscription.Predicate,
		headers:   subscription.Headers,
		callback:  subscription.Callback,
	})
	a.owners[id] = subscription.Prefix
	if len(handlers) == 0 {
		a.updateInterest(subscription.Prefix, true)
	}
	return id
}

// Unsubscribe removes the handler with id and reports whether it
// existed. Removing the last handler on a prefix drops the transport
// interest in it, except for the shutdown topic.
func (a *Agent) Unsubscribe(id SubscriptionID) bool {
	prefix, ok := a.owners[id]
	if !ok {
		return false
	}
	return a.UnsubscribeFrom(prefix, id)
}

// UnsubscribeFrom removes handler id only if it is registered under
// prefix.
func (a *Agent) UnsubscribeFrom(prefix string, id SubscriptionID) bool {
	handlers := a.prefixes[prefix]
	for i, existing := range handlers {
		if existing.id != id {
			continue
		}
		remaining := make([]*handler, 0, len(handlers)-1)
		remaining = append(remaining, handlers[:i]...)
		remaining = append(remaining, handlers[i+1:]...)
		delete(a.owners, id)
		if len(remaining) == 0 {
			delete(a.prefixes, prefix)
			a.updateInterest(prefix, false)
		} else {
			a.prefixes[prefix] = remaining
		}
		return true
	}
	return false
}

// UnsubscribeAll removes every handler on prefix and returns how many
// were removed.
func (a *Agent) UnsubscribeAll(prefix string) int {
	handlers, ok := a.prefixes[prefix]
	if !ok {
		return 0
	}
	for _, existing := range handlers {
		delete(a.owners, existing.id)
	}
	delete(a.prefixes, prefix)
	a.updateInterest(prefix, false)
	return len(handlers)
}

// UnsubscribeEverything removes every handler on every prefix.
func (a *Agent) UnsubscribeEverything() int {
	removed := 0
	for prefix := range a.prefixes {
		removed += a.UnsubscribeAll(prefix)
	}
	return removed
}

// Prefixes returns the prefixes that currently have handlers.
func (a *Agent) Prefixes() []string {
	prefixes := make([]string, 0, len(a.prefixes))
	for prefix := range a.prefixes {
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}

// HandlerCount returns the number of handlers registered on prefix.
func (a *Agent) HandlerCount(prefix string) int { return len(a.prefixes[prefix]) }

func (a *Agent) updateInterest(prefix string, add bool) {
	var err error
	if add {
		err = a.subscriber.Subscribe(prefix)
	} else {
		if prefix == topics.PlatformShutdown {
			return
		}
		err = a.subscriber.Unsubscribe(prefix)
	}
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrClosed):
	case errors.Is(err, transport.ErrDisconnected):
		// The interest set is already updated and is replayed on
		// reconnect.
		a.scheduleReconnect()
	default:
		a.logger.Warn("updating transport interest failed", "prefix", prefix, "subscribe", add, "error", err)
	}
}

// handleReadable is the reactor callback for the subscriber socket.
func (a *Agent) handleReadable(reactor.Source, reactor.Kind) error {
	message, err := a.subscriber.RecvMessage(false)
	if err == nil {
		return a.dispatch(message)
	}

	var protocolErr *transport.ProtocolError
	switch {
	case errors.Is(err, transport.ErrWouldBlock), errors.Is(err, transport.ErrClosed):
		return nil
	case errors.Is(err, transport.ErrDisconnected):
		a.logger.Warn("exchange connection lost", "error", err)
		a.scheduleReconnect()
		return nil
	case errors.As(err, &protocolErr) && a.config.ErrorPolicy == Continue:
		a.logger.Error("dropping malformed message", "error", err)
		return nil
	default:
		return err
	}
}

type delivery struct {
	prefix  string
	handler *handler
}

// dispatch delivers message to every matching handler. Handlers are
// collected before any runs, so subscription changes made by a handler
// apply from the next message on.
func (a *Agent) dispatch(message transport.Message) error {
	if message.Topic == topics.PlatformShutdown {
		defer func() {
			a.logger.Info("shutdown topic received, closing subscriber")
			a.Close()
		}()
	}

	var deliveries []delivery
	for prefix, handlers := range a.prefixes {
		if !strings.HasPrefix(message.Topic, prefix) {
			continue
		}
		for _, h := range handlers {
			deliveries = append(deliveries, delivery{prefix: prefix, handler: h})
		}
	}

	for _, d := range deliveries {
		if err := a.deliver(d, message); err != nil {
			handlerErr := &HandlerError{Topic: message.Topic, Prefix: d.prefix, ID: d.handler.id, Err: err}
			if a.config.ErrorPolicy == Propagate {
				return handlerErr
			}
			a.logger.Error("message handler failed",
				"topic", message.Topic,
				"prefix", d.prefix,
				"subscription", uint64(d.handler.id),
				"error", err,
			)
		}
	}
	return nil
}

func (a *Agent) deliver(d delivery, message transport.Message) (err error) {
	if a.config.ErrorPolicy == Continue {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = panicError(recovered)
			}
		}()
	}

	var result match.Result
	if d.handler.predicate != nil {
		result = d.handler.predicate(message.Topic, d.prefix)
		if !result.Matched() {
			return nil
		}
	}
	if d.handler.headers != nil && !d.handler.headers(headersOrEmpty(message.Headers)) {
		return nil
	}
	return d.handler.callback(message.Topic, message.Headers, message.Parts, result)
}

func headersOrEmpty(h *headers.Headers) *headers.Headers {
	if h == nil {
		return headers.New()
	}
	return h
}
