package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net"

	dockererrdefs "github.com/docker/docker/errdefs"
)

// Kind classifies an error for callers and for the circuit breaker.
// Only KindTransport counts as a breaker failure.
type Kind string

const (
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindValidation  Kind = "validation_error"
	KindTransport   Kind = "transport_error"
	KindBreakerOpen Kind = "breaker_open"
	KindEngine      Kind = "engine_error"
	KindStream      Kind = "stream_error"
	KindCancelled   Kind = "cancelled"
	KindInternal    Kind = "internal"
)

// Error is a kind-tagged error carrying the original cause
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a kind-tagged error without a cause
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a kind-tagged error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf returns the kind of an error, or KindInternal when untagged
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsForbidden reports whether err is a permission denial
func IsForbidden(err error) bool { return is(err, KindForbidden) }

// IsNotFound reports whether err marks an absent host, resource, or grant
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsConflict reports whether err marks a create colliding with existing state
func IsConflict(err error) bool { return is(err, KindConflict) }

// IsValidation reports whether err marks rejected input
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsTransport reports whether err marks an unreachable engine. Transport
// errors are the only kind counted by the circuit breaker.
func IsTransport(err error) bool { return is(err, KindTransport) }

// IsBreakerOpen reports whether err was short-circuited by an open breaker
func IsBreakerOpen(err error) bool { return is(err, KindBreakerOpen) }

// IsEngine reports whether err is a semantic engine failure
func IsEngine(err error) bool { return is(err, KindEngine) }

// IsStream reports whether err marks a mid-flight stream failure
func IsStream(err error) bool { return is(err, KindStream) }

// IsCancelled reports whether err marks a caller-aborted operation
func IsCancelled(err error) bool {
	return is(err, KindCancelled) || errors.Is(err, context.Canceled)
}

// FromEngine translates a Docker SDK error into the core taxonomy. The
// transport/engine split drawn here is authoritative: connection-level
// failures become KindTransport, everything the daemon answered becomes
// KindEngine or a more specific caller-error kind.
func FromEngine(err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindCancelled, "operation cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTransport, "engine call timed out", err)
	}

	switch {
	case dockererrdefs.IsNotFound(err):
		return Wrap(KindNotFound, "resource not found", err)
	case dockererrdefs.IsConflict(err):
		return Wrap(KindConflict, "resource conflict", err)
	case dockererrdefs.IsInvalidParameter(err):
		return Wrap(KindValidation, "invalid parameter", err)
	case dockererrdefs.IsUnauthorized(err), dockererrdefs.IsForbidden(err):
		return Wrap(KindForbidden, "engine rejected credentials", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindTransport, "engine unreachable", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Wrap(KindTransport, "engine unreachable", err)
	}
	if dockererrdefs.IsSystem(err) || dockererrdefs.IsUnavailable(err) {
		return Wrap(KindTransport, "engine unavailable", err)
	}

	// The daemon answered with a semantic failure ("container is not
	// running" and friends). Never counted by the breaker.
	return Wrap(KindEngine, "engine error", err)
}
