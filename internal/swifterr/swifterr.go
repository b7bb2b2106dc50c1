// Package swifterr defines the stable error taxonomy shared by every
// SwiftLens component, so callers across package boundaries can switch on
// a Kind instead of string-matching messages.
package swifterr

import (
	"errors"
	"fmt"
)

// Kind is a stable, transport-independent error category.
type Kind string

const (
	Validation       Kind = "validation"
	FileNotFound     Kind = "file-not-found"
	NotSwiftFile     Kind = "not-swift-file"
	ProjectNotFound  Kind = "project-not-found"
	Environment      Kind = "environment"
	Timeout          Kind = "timeout"
	SessionLost      Kind = "session-lost"
	LSPError         Kind = "lsp-error"
	BuildError       Kind = "build-error"
	BuildInProgress  Kind = "build-in-progress"
	Internal         Kind = "internal"
)

// Error is the structured error envelope returned across component
// boundaries. It always carries a stable Kind and a human-readable
// Message; Details and Code are populated for kinds that need them.
type Error struct {
	Kind    Kind
	Message string
	Code    int // populated for LSPError (JSON-RPC error code)
	Details string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, preserving err for errors.Is/As.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithCode attaches a JSON-RPC error code, used for LSPError.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// WithDetails attaches sanitized stderr/build output.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that isn't one of ours.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Internal
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
