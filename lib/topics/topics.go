// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package topics names the reserved topics of the message bus.
//
// Topics are slash-delimited strings used both as routing keys and as
// prefix-matchable addresses. The reserved topics here are understood by
// every agent (PlatformShutdown), by the ping-back idiom (AgentPing), or
// by the exchange itself (the subscriptions/ family).
package topics

import "strings"

// PlatformShutdown is broadcast to stop every agent on the bus. Agents
// subscribe to it unconditionally and close their subscriber transport
// after dispatching it.
const PlatformShutdown = "platform/shutdown"

// agentPingPrefix is the topic prefix of ping-back probes.
const agentPingPrefix = "agent/ping/"

// AgentPing returns the topic of a ping-back probe carrying cookie.
func AgentPing(cookie string) string {
	return agentPingPrefix + cookie
}

// Exchange topics. The exchange announces interest changes on
// SubscriptionsAdd/SubscriptionsRemove and answers queries published on
// SubscriptionsList.
const (
	SubscriptionsAdd    = "subscriptions/add"
	SubscriptionsRemove = "subscriptions/remove"
	SubscriptionsList   = "subscriptions/list"
)

// SubscriptionChange returns the announcement topic for a subscription
// being added or removed. A topic that already begins with a slash is
// appended without doubling it.
func SubscriptionChange(added bool, topic string) string {
	base := SubscriptionsRemove
	if added {
		base = SubscriptionsAdd
	}
	if strings.HasPrefix(topic, "/") {
		return base + topic
	}
	return base + "/" + topic
}

// ListQueryPrefix reports whether topic is a subscription list query
// and, if so, returns the prefix being queried. Both
// "subscriptions/list" and "subscriptions/list/<prefix>" are queries;
// "subscriptions/listing" is not.
func ListQueryPrefix(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, SubscriptionsList)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if rest[0] != '/' {
		return "", false
	}
	return rest[1:], true
}
