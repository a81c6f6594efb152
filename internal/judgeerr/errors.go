// Package judgeerr defines the error-kind taxonomy shared across the
// submission lifecycle: validation, lookup, and the outcomes a Sandbox
// Driver invocation can produce.
package judgeerr

import "errors"

// Kind identifies which layer raised an error and how it must be surfaced.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFound"
	KindRuntimeUnavailable Kind = "RuntimeUnavailable"
	KindCompileError      Kind = "CompileError"
	KindRunTimeout        Kind = "RunTimeout"
	KindRunNonZero        Kind = "RunNonZero"
	KindInternal          Kind = "InternalError"
	KindStorage           Kind = "StorageError"
)

// Error is a judge-engine error carrying a taxonomy Kind alongside the
// underlying cause.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Kind reports which taxonomy entry this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// New constructs an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// KindOf extracts the Kind from err, walking the unwrap chain. Returns
// KindInternal if err carries no judge-engine Kind.
func KindOf(err error) Kind {
	var je *Error
	if errors.As(err, &je) {
		return je.kind
	}
	return KindInternal
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
