// Package svcerr defines the exhaustive error-category taxonomy (§7) shared
// by stores, adapters, the file-check pipeline, and message handlers. Errors
// are wrapped with github.com/pkg/errors so a category survives alongside a
// stack trace as it crosses package boundaries.
package svcerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category is one of the exhaustive set of error tags surfaced on events and
// execution records.
type Category string

const (
	ConfigurationError Category = "ConfigurationError"
	ValidationError     Category = "ValidationError"
	AuthenticationFailure Category = "AuthenticationFailure"
	ConnectionTimeout   Category = "ConnectionTimeout"
	ProtocolError       Category = "ProtocolError"
	Conflict            Category = "Conflict"
	PreconditionFailed  Category = "PreconditionFailed"
	Cancelled           Category = "Cancelled"
	HandlerError        Category = "HandlerError"
)

// Retryable reports whether the file-check pipeline's adapter-call retry
// policy (§4.5 step 4) should retry an error of this category.
func (c Category) Retryable() bool {
	switch c {
	case ConnectionTimeout, ProtocolError:
		return true
	default:
		return false
	}
}

// Error is a categorized, wrapped error.
type Error struct {
	Category Category
	cause    error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Cause() error  { return e.cause }

// New wraps err (or, if err is nil, creates a bare category error) with cat,
// preserving a stack trace via pkg/errors.
func New(cat Category, err error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if err != nil {
		wrapped = errors.Wrap(err, msg)
	} else {
		wrapped = errors.New(msg)
	}
	return &Error{Category: cat, cause: wrapped}
}

// CategoryOf extracts the Category from err if it (or something it wraps) is
// an *Error; otherwise returns HandlerError as the catch-all per §7.
func CategoryOf(err error) Category {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return HandlerError
}

var (
	ErrNotFound           = errors.New("svcerr: not found")
	ErrConflict           = errors.New("svcerr: conflict")
	ErrPreconditionFailed = errors.New("svcerr: precondition failed")
)
