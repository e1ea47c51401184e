package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrBuildNotFound  = errors.New("build not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrNetworkTimeout = errors.New("network timeout")
)

// Kind classifies an error. Transient, Permanent, NotFound and Invalid are
// reported by BuildService implementations; the rest are raised by the
// orchestration layer itself.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConfiguration
	KindTransient
	KindPermanent
	KindNotFound
	KindInvalid
	KindInterrupted
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindInterrupted:
		return "interrupted"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf reports malformed or out-of-range input.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Configurationf reports well-formed input that does not resolve against
// the build server's current state.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Tag attaches a kind to an error returned by a build server call.
func Tag(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewInterrupted reports a cancellation observed while blocked.
func NewInterrupted(err error) *Error {
	return &Error{Kind: KindInterrupted, Message: "operation interrupted", Err: err}
}

// NewIOError reports a local filesystem failure. The OS error text is kept.
func NewIOError(op string, err error) *Error {
	return &Error{Kind: KindIO, Message: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Context cancellation is reported as KindInterrupted.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindInterrupted
	}
	return KindUnknown
}

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// UserError wraps errors with user-friendly messages
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// attemptCounter is implemented by errors that report how many attempts
// were made before giving up.
type attemptCounter interface {
	AttemptCount() int
}

// WrapError converts classified errors to user-friendly messages
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrAuthFailed) {
		return &UserError{
			Message: "Authentication failed",
			Hint:    "Check that BUILDCTL_TOKEN is valid and has access to the build server.",
			Err:     err,
		}
	}

	var exhausted attemptCounter
	if errors.As(err, &exhausted) {
		return &UserError{
			Message: fmt.Sprintf("Build server still failing after %d attempts", exhausted.AttemptCount()),
			Hint:    "The failures were transient. Retry later or raise --attempts / --delay.",
			Err:     err,
		}
	}

	switch KindOf(err) {
	case KindValidation, KindInvalid:
		return &UserError{
			Message: "Invalid input",
			Hint:    "The details name the offending parameter and value.",
			Err:     err,
		}
	case KindConfiguration, KindNotFound:
		return &UserError{
			Message: "Not found on the build server",
			Hint:    "Check that the build result, definition, or file exists and that BUILDCTL_SERVER_URL points at the right server.",
			Err:     err,
		}
	case KindInterrupted:
		return &UserError{
			Message: "Operation interrupted",
			Err:     err,
		}
	}

	return err
}
