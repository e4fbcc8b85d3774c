// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package match builds topic subscription rules for agents.
//
// A Rule pairs the literal prefix an agent subscribes to with an
// optional Predicate that refines which topics under that prefix reach
// the callback. The prefix is what the transport filters on, so every
// constructor here splits its pattern into the longest static prefix
// and a predicate for the dynamic remainder:
//
//	rule, err := match.Glob("devices/campus/*/rtu?/all")
//	// rule.Prefix == "devices/campus/"
//
// Predicates return a tagged Result. NoMatch suppresses the callback;
// Match carries a value (the matched topic, regex submatches, or the
// matching remainder) that the agent passes to the callback. The zero
// Result means no predicate was evaluated.
//
// HeaderTest filters on message headers rather than topics. It cannot
// drive a subscription on its own and is attached alongside a Rule.
package match
