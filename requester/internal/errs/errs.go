// Package errs defines the error kinds of the ingestion pipeline. The
// requester package re-exports them.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is returned when no source matches the configured
	// organization name.
	ErrSourceNotFound = errors.New("source not found")
	// ErrNoEntity is returned when a source has no attribution entity.
	ErrNoEntity = errors.New("source has no attribution entity")
)

// InvalidDateError reports a malformed planner input. It is fatal to the
// invocation.
type InvalidDateError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// TransportError reports a failure reaching the feed: network error,
// non-2xx status, unreadable or non-text body.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a feed payload that is not parseable RSS.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse feed: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// RateLimitedError reports provider-signalled throttling.
type RateLimitedError struct {
	StatusCode int
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// PersistenceError reports a storage write failure during ingestion.
// Articles committed before the failure remain stored.
type PersistenceError struct {
	URL string
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.URL, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
