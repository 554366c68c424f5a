// FILE: errors.go
// Package main – error taxonomy shared by every component.
//
// Five kinds, matching the failure classes a trading cycle actually produces. Call sites
// classify once at the boundary (venue client, analyst client, internal invariant check) and
// every higher layer only ever needs errors.Is against the sentinel.
package main

import (
	"errors"
	"fmt"
)

var (
	// ErrVenueTransient marks a network timeout, HTTP 5xx, or WS disconnect. Call sites log it
	// and move on (a missed tick/call); only the WS bridge is re-dialled, by main.go's
	// reconnect loop.
	ErrVenueTransient = errors.New("venue: transient")
	// ErrVenueLogical marks an order rejection, insufficient balance, or untradeable symbol.
	// The trade aborts; the cycle continues with the next symbol.
	ErrVenueLogical = errors.New("venue: logical rejection")
	// ErrAnalystInvalid marks a JSON parse failure, missing field, or failed validation rule
	// on an analyst response. The signal is dropped silently for this cycle.
	ErrAnalystInvalid = errors.New("analyst: invalid output")
	// ErrInvariant marks an internal invariant violation. Fatal: callers must log, flush
	// state, and exit non-zero.
	ErrInvariant = errors.New("invariant violation")
	// ErrRateLimited marks a data-provider rate limit. The client backs off for the current
	// minute window and returns cached or empty data.
	ErrRateLimited = errors.New("rate limited")
)

// wrapKind attaches a sentinel kind to a formatted message. Only the sentinel is wrapped via %w,
// so errors.Is matches the kind; any lower-level error passed in args is formatted into the text
// and is not reachable through errors.Is/As.
func wrapKind(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func transientf(format string, args ...interface{}) error { return wrapKind(ErrVenueTransient, format, args...) }
func logicalf(format string, args ...interface{}) error    { return wrapKind(ErrVenueLogical, format, args...) }
func analystInvalidf(format string, args ...interface{}) error {
	return wrapKind(ErrAnalystInvalid, format, args...)
}
func invariantf(format string, args ...interface{}) error { return wrapKind(ErrInvariant, format, args...) }

// isFatal reports whether err must halt the process (spec.md §7: "the only exceptions that halt
// the process are invariant violations").
func isFatal(err error) bool {
	return errors.Is(err, ErrInvariant)
}
