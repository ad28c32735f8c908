// Package apperr defines the error taxonomy shared by services and handlers.
// Handlers map each variant to a fixed HTTP status code at the boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no valid session backs a request
	// that requires one.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when a banned user attempts the rebind flow.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a session or user row is absent during
	// resolution. Callers treat this as "anonymous", not as a hard failure.
	ErrNotFound = errors.New("not found")

	// ErrCollision is returned when another user already holds the requested
	// Minecraft account. Surfaced distinctly so clients can prompt for a
	// different name.
	ErrCollision = errors.New("minecraft account already bound")

	// ErrBadRequest covers validation and generic storage failures.
	ErrBadRequest = errors.New("bad request")
)

// UpstreamError wraps a transport or decode failure from one of the upstream
// identity services. The original cause is preserved for logging; it is never
// rendered to clients.
type UpstreamError struct {
	Op  string // e.g. "discord.refresh", "mojang.uuid_by_username"
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError for the given operation.
func Upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
