package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies orchestration failures for outbound reporting.
type ErrorKind string

const (
	// ErrKindRouting covers router port failures: timeouts, malformed
	// upstream responses, network errors.
	ErrKindRouting ErrorKind = "routing_failure"

	// ErrKindPlanInvalid covers a router that answered but produced a
	// denied, errored, or structurally incomplete plan.
	ErrKindPlanInvalid ErrorKind = "plan_invalid"

	// ErrKindExecutorUnavailable means the requested executor cannot be
	// launched on this host at all.
	ErrKindExecutorUnavailable ErrorKind = "executor_unavailable"

	// ErrKindExecutorRuntime covers failures of a session that did launch.
	ErrKindExecutorRuntime ErrorKind = "executor_runtime"

	// ErrKindBusy rejects a launch while another is pending or running.
	ErrKindBusy ErrorKind = "busy"
)

// Error is an orchestration failure with a user-presentable reason.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// NewError wraps err with a kind and a human-readable reason.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, defaulting to fallback when err
// carries no kind.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return fallback
}
