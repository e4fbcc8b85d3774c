// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package headers provides the metadata map attached to every bus
// message.
//
// Keys compare case-insensitively but keep the casing of their most
// recent write, so "content-type" and "Content-Type" address the same
// entry and [Headers.Map] renders whichever spelling was set last.
// Entries keep insertion order, which makes the JSON rendering on the
// wire deterministic for a given sequence of writes.
//
// Reserved keys used by the messaging core are exported as constants
// ([ContentType], [Date], [Cookie], ...). A message with exactly one
// body part may declare its Content-Type as a bare string; otherwise the
// value is a list aligned one-to-one with the body parts.
package headers
