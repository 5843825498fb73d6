package mediate

import (
	"fmt"
	"sort"
	"strings"
)

// Code is a machine-readable failure classification. Codes produced by the
// engine itself are the Code* constants below; handler-authored failures may
// carry any code they like.
type Code string

const (
	// CodeUnknown is the sentinel for failures with no better classification,
	// such as a wrapped cause that is not a *mediate.Error.
	CodeUnknown Code = "unknown"

	// CodeHandlerMissing indicates no handler is registered for a request
	// type, or the registered binding does not produce the expected response
	// type.
	CodeHandlerMissing Code = "handler_missing"

	// CodeRequestCancelled indicates the caller's cancellation signal fired
	// before the request pipeline completed.
	CodeRequestCancelled Code = "request_cancelled"

	// CodePipelineException indicates a defect (panic or untyped error)
	// escaped a pre-processor, behavior, or handler on the request path.
	CodePipelineException Code = "pipeline_exception"

	// CodeNotificationMissingHandle indicates a notification handler binding
	// could not accept the notification's runtime type.
	CodeNotificationMissingHandle Code = "notification_missing_handle"

	// CodeNotificationCancelled indicates the caller's cancellation signal
	// fired during notification dispatch.
	CodeNotificationCancelled Code = "notification_cancelled"

	// CodeNotificationException indicates a defect escaped a notification
	// handler.
	CodeNotificationException Code = "notification_exception"
)

// Error is the failure half of a Result. It is immutable: construct one with
// NewError or Wrap and read it through its accessors. Error implements the
// error interface and unwraps to its cause, so errors.Is and errors.As work
// through a Result's failure.
type Error struct {
	code    Code
	message string
	cause   error
	meta    map[string]string
}

// ErrorOption configures an Error at construction time.
type ErrorOption func(*Error)

// WithCause attaches a wrapped cause to the error.
func WithCause(cause error) ErrorOption {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithMeta attaches a structured key/value pair, such as the request type or
// pipeline stage the failure originated from.
func WithMeta(key, value string) ErrorOption {
	return func(e *Error) {
		if e.meta == nil {
			e.meta = make(map[string]string)
		}
		e.meta[key] = value
	}
}

// newError is the single construction path for every failure the engine or
// its callers produce. All public constructors funnel through it.
func newError(code Code, message string, opts ...ErrorOption) *Error {
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		opt(e)
	}
	if e.code == "" {
		e.code = CodeUnknown
	}
	return e
}

// NewError creates an Error with an explicit code.
//
// Example:
//
//	mediate.NewError("insufficient_funds", "balance too low",
//	    mediate.WithMeta("account", accountID))
func NewError(code Code, message string, opts ...ErrorOption) *Error {
	return newError(code, message, opts...)
}

// Wrap creates an Error around an existing cause. The code is derived from
// the cause's identity: a *mediate.Error keeps its code, anything else maps
// to CodeUnknown.
func Wrap(cause error, message string, opts ...ErrorOption) *Error {
	code := CodeUnknown
	if inner, ok := cause.(*Error); ok && inner != nil {
		code = inner.code
	}
	opts = append(opts, WithCause(cause))
	return newError(code, message, opts...)
}

// Code returns the machine-readable classification.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable description.
func (e *Error) Message() string { return e.message }

// Meta returns a copy of the structured metadata. Mutating the returned map
// does not affect the error.
func (e *Error) Meta() map[string]string {
	if len(e.meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.meta))
	for k, v := range e.meta {
		out[k] = v
	}
	return out
}

// MetaValue returns a single metadata value.
func (e *Error) MetaValue(key string) (string, bool) {
	v, ok := e.meta[key]
	return v, ok
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.code, e.message)
	if len(e.meta) > 0 {
		keys := make([]string, 0, len(e.meta))
		for k := range e.meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.meta[k])
		}
		b.WriteString("]")
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// Result is a two-case success/failure value. It is the only channel through
// which dispatch operations report expected failures; callers never need
// recover or sentinel comparisons on the happy path.
type Result[T any] struct {
	value T
	err   *Error
}

// Ok returns a successful Result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail returns a failed Result carrying err. A nil err is normalized to a
// CodeUnknown failure so a Result is never failed-with-nothing.
func Fail[T any](err *Error) Result[T] {
	if err == nil {
		err = newError(CodeUnknown, "failure with no error")
	}
	return Result[T]{err: err}
}

// IsOK reports whether the result is a success.
func (r Result[T]) IsOK() bool { return r.err == nil }

// IsFailure reports whether the result is a failure.
func (r Result[T]) IsFailure() bool { return r.err != nil }

// Value returns the success value. For a failure it returns the zero value.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure, or nil for a success.
func (r Result[T]) Err() *Error { return r.err }

// Get unpacks the result into Go's conventional value/error pair.
func (r Result[T]) Get() (T, *Error) { return r.value, r.err }

// Unit is the empty response type used by operations that report only
// success or failure, such as notification dispatch.
type Unit struct{}
