// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorPolicy selects what happens when a message handler, timer, or
// submitted function fails.
type ErrorPolicy int

const (
	// Propagate aborts the current dispatch pass or timer pass and
	// returns the error from Step and Loop. Later handlers for the
	// same message do not run. This is the default.
	Propagate ErrorPolicy = iota

	// Continue logs the error and keeps going. Panics in callbacks are
	// recovered and logged as errors.
	Continue
)

func (p ErrorPolicy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case Continue:
		return "continue"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy parses "propagate" or "continue".
func ParseErrorPolicy(name string) (ErrorPolicy, error) {
	switch strings.ToLower(name) {
	case "", "propagate":
		return Propagate, nil
	case "continue":
		return Continue, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q", name)
	}
}

// UnmarshalText lets ErrorPolicy appear directly in config files.
func (p *ErrorPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseErrorPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p ErrorPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// HandlerError wraps an error returned (or a panic raised) by a
// subscription callback.
type HandlerError struct {
	Topic  string
	Prefix string
	ID     SubscriptionID
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("agent: handler %d for prefix %q failed on %q: %v", e.ID, e.Prefix, e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

var (
	// ErrInvalidState is returned when a lifecycle method is called out
	// of order.
	ErrInvalidState = errors.New("agent: invalid state for operation")

	// ErrStopped is returned by Submit once the agent has finished.
	ErrStopped = errors.New("agent: stopped")
)

// panicError converts a recovered panic value into an error.
func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", recovered)
}
