// Package bierr implements the typed error taxonomy the coordinator uses to
// classify failures at handler boundaries and to decide whether a result
// propagation attempt is retriable.
package bierr

import (
	"net/http"

	"golang.org/x/xerrors"
)

// Category classifies an error for HTTP status mapping and retry decisions.
type Category int

const (
	// Internal is unclassified and logged with full context.
	Internal Category = iota
	// InputInvalid is a malformed payload, missing package marker, fork PR,
	// or unknown arch.
	InputInvalid
	// AuthFailed is a shared-secret mismatch.
	AuthFailed
	// Conflict is a report for a job not assigned to the caller, or any
	// other state machine violation.
	Conflict
	// Upstream is a tree helper, hosting provider, chat provider, or repo
	// push failure.
	Upstream
	// Storage is a transactional failure against the persistence store.
	Storage
)

func (c Category) String() string {
	switch c {
	case InputInvalid:
		return "InputInvalid"
	case AuthFailed:
		return "AuthFailed"
	case Conflict:
		return "Conflict"
	case Upstream:
		return "Upstream"
	case Storage:
		return "Storage"
	default:
		return "Internal"
	}
}

// HTTPStatus maps a category to the status code used at handler boundaries.
// Structured variants are logged separately; the wire response collapses
// everything to the status below with the message rendered as plain text.
func (c Category) HTTPStatus() int {
	switch c {
	case InputInvalid:
		return http.StatusBadRequest
	case AuthFailed:
		return http.StatusUnauthorized
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Retriable reports whether C7 should retry an error of this category.
// Fatal classes (InputInvalid, AuthFailed, Conflict) are never retried;
// Upstream and Storage are transient.
func (c Category) Retriable() bool {
	switch c {
	case InputInvalid, AuthFailed, Conflict:
		return false
	default:
		return true
	}
}

// Error is a categorized, wrapped error.
type Error struct {
	Category Category
	cause    error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Category.String()
	}
	return e.Category.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New wraps err as-is in a category, adding no message of its own; the
// result's message is the category name followed by err's message.
func New(cat Category, err error) *Error {
	return &Error{Category: cat, cause: err}
}

// Errorf builds a categorized error from a format string, analogous to
// xerrors.Errorf("...: %w", err).
func Errorf(cat Category, format string, args ...interface{}) *Error {
	return &Error{Category: cat, cause: xerrors.Errorf(format, args...)}
}

// CategoryOf extracts the category of err, defaulting to Internal if err is
// not (or does not wrap) a *Error.
func CategoryOf(err error) Category {
	var be *Error
	if xerrors.As(err, &be) {
		return be.Category
	}
	return Internal
}
