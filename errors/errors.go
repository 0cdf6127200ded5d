// Package errors provides the structured error type shared by the sync core.
//
// Every failure surfaced to a caller carries exactly one Kind from the
// taxonomy below, so UI-layer callers can branch on classification (force
// re-auth on Unauthenticated, show a staleness banner on Unreachable, and so
// on) without parsing error strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. Exactly one Kind applies per error.
type Kind uint8

const (
	// Unknown covers any status or failure not mapped below.
	Unknown Kind = iota

	// Unauthenticated maps from HTTP 401. Callers should force re-authentication.
	Unauthenticated

	// Forbidden maps from HTTP 403. Callers should not retry.
	Forbidden

	// NotFound maps from HTTP 404.
	NotFound

	// Conflict maps from HTTP 409, e.g. a duplicate group name.
	Conflict

	// Invalid maps from HTTP 400 or a client-side validation failure.
	Invalid

	// Unreachable indicates a transport-level failure with no status code.
	// Timeouts are treated identically.
	Unreachable
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// KindFromStatus maps a non-2xx HTTP status code to its Kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return Unauthenticated
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	case http.StatusConflict:
		return Conflict
	case http.StatusBadRequest:
		return Invalid
	default:
		return Unknown
	}
}

// Op names the operation during which the error occurred, e.g. "repository.ReportsNear".
type Op string

// Component names the component that generated the error, e.g. "remote", "storage/sqlite".
type Component string

// SyncError is the error type produced by this module.
type SyncError struct {
	Op        Op
	Component Component
	Kind      Kind
	Err       error
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}
	msg += fmt.Sprintf(" [%s]", e.Kind)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// E builds a *SyncError from its arguments. Accepted types are Op, Component,
// Kind, error and string (used as a literal message). Later arguments of the
// same type override earlier ones.
func E(args ...interface{}) error {
	e := &SyncError{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Component:
			e.Component = a
		case Kind:
			e.Kind = a
		case *SyncError:
			// Inherit classification from a wrapped SyncError unless already set.
			if e.Kind == Unknown {
				e.Kind = a.Kind
			}
			e.Err = a
		case error:
			e.Err = a
		case string:
			e.Err = errors.New(a)
		default:
			panic(fmt.Sprintf("errors.E: bad argument type %T", arg))
		}
	}
	return e
}

// KindOf returns the Kind of err, or Unknown if err is not a *SyncError.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind.
func Is(kind Kind, err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return kind == Unknown
}

// IsRetryable reports whether the failure is worth retrying. Only transport
// failures and unclassified server errors qualify; the client-error kinds are
// deterministic and retrying them cannot help.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case Unreachable, Unknown:
		return true
	default:
		return false
	}
}
