package build

import (
	"errors"
	"fmt"
)

// Kind tags an Error with the failure class the operator sees. Every
// kind is terminal for the invocation; nothing is retried.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindConfig           Kind = "config"
	KindResource         Kind = "resource"
	KindTransport        Kind = "transport"
	KindReadinessTimeout Kind = "readiness_timeout"
	KindDeletionTimeout  Kind = "deletion_timeout"
	KindBuildTimeout     Kind = "build_timeout"
	KindBuildFailure     Kind = "build_failure"
)

// Error is the single error type the orchestration layer returns.
// Internal functions never terminate the process; the top-level
// handler maps Kind to an exit code and message.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain. Errors raised
// outside the taxonomy report as KindResource.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindResource
}
