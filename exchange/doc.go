// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package exchange implements the platform message exchange that
// agents publish to and subscribe from.
//
// The exchange listens on two endpoints. Pushers connect to the publish
// endpoint and send message units. Subscribers connect to the subscribe
// endpoint, send subscription control units, and receive every unit
// whose topic starts with one of their prefixes. Units are forwarded
// byte-for-byte; the exchange decodes only what it needs to route.
//
// Each subscriber has a bounded send queue drained by its own
// goroutine. A subscriber that cannot keep up loses units rather than
// slowing the publishers or the other subscribers.
//
// The exchange tracks how many subscribers hold each prefix. When a
// prefix gains its first holder it broadcasts subscriptions/add/<prefix>;
// when it loses its last, subscriptions/remove/<prefix>. A unit
// published on subscriptions/list or subscriptions/list/<p> is rewritten
// before forwarding: its topic and headers frames are kept, its body is
// replaced with one frame per subscribed prefix starting with <p>.
package exchange
