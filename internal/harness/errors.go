package harness

import (
	"fmt"
	"time"
)

// TransportError means the endpoint could not be reached or its answer
// could not be decoded. It is never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError means a poll predicate never held within its budget.
type TimeoutError struct {
	Path  string
	Polls int
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for: %s (%d polls over %s)", e.Path, e.Polls, e.After)
}

// InvalidArgumentError is a caller mistake detected before any network call.
type InvalidArgumentError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Name, e.Value, e.Reason)
}

// ParseError means an expected structure was missing from a message.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %s", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
