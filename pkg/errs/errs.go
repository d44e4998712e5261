// Package errs defines the stable failure-kind sum type shared by every
// component of the governed execution pipeline. Handlers recover transient
// failures locally; everything else bubbles up as one of these kinds so the
// Dispatcher and the HTTP layer can map it to a status code without
// inspecting concrete error types.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable error-kind identifier. Values are never renamed or
// renumbered — callers match on the constant, not on the message.
type Kind string

// The nine kinds from the failure sum. Each has a fixed HTTP status and
// retry policy documented alongside it.
const (
	// BadRequest: malformed request, missing required field, invalid
	// action payload. Surfaced as 400. Never retried.
	BadRequest Kind = "BadRequest"

	// Unauthorized: bearer token subject does not match the capsule's
	// userId, or the capsule is missing an immutable field. Surfaced as
	// 401. Never retried.
	Unauthorized Kind = "Unauthorized"

	// NotFound: agent, conversation, plan, deliverable, version, or
	// runner type does not exist. Surfaced as 404. Never retried.
	NotFound Kind = "NotFound"

	// Conflict: optimistic-concurrency version clash in the Artifact
	// Store. Surfaced as 409. Retried internally up to a fixed bound
	// before being returned to the caller.
	Conflict Kind = "Conflict"

	// Unconfigured: the LLM Gateway has neither an explicit nor a
	// global-config provider/model. Surfaced as 503. Never retried.
	Unconfigured Kind = "Unconfigured"

	// UpstreamTimeout: a provider or external agent call exceeded its
	// deadline. Surfaced as 504. Retried by the LLM Gateway's backoff
	// policy before surfacing.
	UpstreamTimeout Kind = "UpstreamTimeout"

	// UpstreamFailure: a provider or external agent call failed with a
	// 5xx/429 (retryable) or other non-2xx status. Surfaced as 502.
	// Retried only for 5xx/429.
	UpstreamFailure Kind = "UpstreamFailure"

	// Cancelled: the request's cancellation token was observed triggered
	// before completion. Surfaced as 499. Never retried.
	Cancelled Kind = "Cancelled"

	// Internal: anything else. Surfaced as 500. Never retried.
	Internal Kind = "Internal"
)

// Error wraps a Kind with a human-readable message and an optional
// underlying cause, following the wrap/unwrap shape the rest of the corpus
// uses for its own domain errors.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error that records an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, errs.New(errs.NotFound, "")) to test for a kind without
// caring about the message.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err, defaulting to Internal when err is not
// (or does not wrap) an *Error. This is the single place that downgrades an
// unrecognized error into the catch-all kind, mirroring spec.md §7's
// "All other failures bubble to the Dispatcher, which maps them...".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus returns the status code spec.md §7 assigns to kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case BadRequest:
		return 400
	case Unauthorized:
		return 401
	case NotFound:
		return 404
	case Conflict:
		return 409
	case Unconfigured:
		return 503
	case UpstreamTimeout:
		return 504
	case UpstreamFailure:
		return 502
	case Cancelled:
		return 499
	default:
		return 500
	}
}

// Retryable reports whether spec.md §7 marks kind as internally retryable.
// This describes the *gateway/store's own* retry policy, not whether a
// caller should retry — BadRequest etc. are never retried by anyone.
func Retryable(kind Kind) bool {
	switch kind {
	case Conflict, UpstreamTimeout:
		return true
	case UpstreamFailure:
		return true
	default:
		return false
	}
}
