// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package match

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/bureau-foundation/gridbus/lib/headers"
)

type outcome uint8

const (
	outcomeNone outcome = iota
	outcomeNoMatch
	outcomeMatched
)

// Result is the outcome of evaluating a Predicate.
type Result struct {
	outcome outcome
	value   any
}

// NoMatch is the Result a predicate returns to suppress the callback.
var NoMatch = Result{outcome: outcomeNoMatch}

// Match returns a matching Result carrying value.
func Match(value any) Result {
	return Result{outcome: outcomeMatched, value: value}
}

// Matched reports whether a predicate accepted the topic.
func (r Result) Matched() bool { return r.outcome == outcomeMatched }

// Evaluated reports whether the Result came from a predicate at all.
// Callbacks subscribed without a predicate receive an unevaluated Result.
func (r Result) Evaluated() bool { return r.outcome != outcomeNone }

// Value returns the payload attached by Match, or nil.
func (r Result) Value() any { return r.value }

func (r Result) String() string {
	switch r.outcome {
	case outcomeNoMatch:
		return "NoMatch"
	case outcomeMatched:
		return fmt.Sprintf("Match(%v)", r.value)
	default:
		return "None"
	}
}

// Predicate decides whether topic, which is known to start with
// prefix, should reach a callback.
type Predicate func(topic, prefix string) Result

// Rule is a subscription prefix plus an optional refining predicate.
type Rule struct {
	Prefix    string
	Predicate Predicate
}

// Test evaluates the rule against topic. A topic outside the prefix is
// NoMatch; a rule without a predicate matches with the prefix as value.
func (r Rule) Test(topic string) Result {
	if !strings.HasPrefix(topic, r.Prefix) {
		return NoMatch
	}
	if r.Predicate == nil {
		return Match(r.Prefix)
	}
	return r.Predicate(topic, r.Prefix)
}

func boolResult(ok bool, value any) Result {
	if ok {
		return Match(value)
	}
	return NoMatch
}

// All matches every topic.
func All() Rule { return Rule{} }

// Start matches every topic beginning with prefix.
func Start(prefix string) Rule { return Rule{Prefix: prefix} }

// Exact matches topic and nothing below it.
func Exact(topic string) Rule {
	return Rule{
		Prefix: topic,
		Predicate: func(candidate, _ string) Result {
			return boolResult(candidate == topic, candidate)
		},
	}
}

// End matches topics under prefix that end with suffix.
func End(suffix, prefix string) Rule {
	return Rule{
		Prefix: prefix,
		Predicate: func(topic, _ string) Result {
			return boolResult(strings.HasSuffix(topic, suffix), topic)
		},
	}
}

// Contains matches topics under prefix that contain substring anywhere.
func Contains(substring, prefix string) Rule {
	return Rule{
		Prefix: prefix,
		Predicate: func(topic, _ string) Result {
			return boolResult(strings.Contains(topic, substring), topic)
		},
	}
}

// Subtopic matches topics under prefix where one of the path levels
// following the prefix equals subtopic. maxLevels limits how many
// levels after the prefix are examined; zero or negative means all.
// The Result value is the index of the matching level after the prefix.
func Subtopic(prefix, subtopic string, maxLevels int) Rule {
	skip := len(strings.Split(prefix, "/"))
	return Rule{
		Prefix: prefix,
		Predicate: func(topic, _ string) Result {
			levels := strings.Split(topic, "/")
			if skip >= len(levels) {
				return NoMatch
			}
			levels = levels[skip:]
			if maxLevels > 0 && len(levels) > maxLevels {
				levels = levels[:maxLevels]
			}
			for i, level := range levels {
				if level == subtopic {
					return Match(i)
				}
			}
			return NoMatch
		},
	}
}

// HeaderTest decides whether a message's headers admit it to a callback.
type HeaderTest func(*headers.Headers) bool

// RequireHeaders admits messages carrying every key in required with an
// equal value. Numbers compare by value whatever their Go type, so a
// required 5 matches a header decoded from JSON as json.Number("5").
// Everything else must be deeply equal: the string "5" does not match
// the number 5.
func RequireHeaders(required map[string]any) HeaderTest {
	return func(h *headers.Headers) bool {
		if h == nil {
			return len(required) == 0
		}
		for key, want := range required {
			got, ok := h.Get(key)
			if !ok {
				return false
			}
			if !valuesEqual(got, want) {
				return false
			}
		}
		return true
	}
}

func valuesEqual(got, want any) bool {
	left, leftNumeric := numeric(got)
	right, rightNumeric := numeric(want)
	if leftNumeric || rightNumeric {
		return leftNumeric && rightNumeric && left.Cmp(right) == 0
	}
	return reflect.DeepEqual(got, want)
}

// numeric returns value as an exact rational when it is a Go number or
// a json.Number. NaN and infinities are not numeric.
func numeric(value any) (*big.Rat, bool) {
	if number, ok := value.(json.Number); ok {
		return new(big.Rat).SetString(number.String())
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Rat).SetInt64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Rat).SetUint64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		rat := new(big.Rat).SetFloat64(v.Float())
		return rat, rat != nil
	default:
		return nil, false
	}
}
