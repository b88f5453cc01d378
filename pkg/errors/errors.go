package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInternal = NewError("INTERNAL_ERROR", "internal error")

	// ErrServiceUnavailable marks a remote dependency that stayed unreachable
	// after its retry budget. It always ends the run.
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable").AsFatal()
	ErrSink               = NewError("SINK_ERROR", "sink write failed").AsFatal()
	ErrConsumer           = NewError("CONSUMER_ERROR", "log consumer failed").AsFatal()
)

type FatalError interface {
	error
	IsFatal() bool
}

// Error is a coded application error. Copies made through the With and As
// methods never share state with the value they were made from.
type Error struct {
	Code    string
	Message string
	Details map[string]interface{}
	Cause   error
	fatal   bool
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports the flag set by AsFatal, falling back to a fatal cause.
func (e *Error) IsFatal() bool {
	if e.fatal {
		return true
	}
	var fatalErr FatalError
	if e.Cause != nil && errors.As(e.Cause, &fatalErr) {
		return fatalErr.IsFatal()
	}
	return false
}

// Is matches on code so that errors.Is(err, ErrSink) holds for any
// decorated copy of the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		err.Details[k] = v
	}
	err.Details[key] = value
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	err.fatal = true
	return &err
}

func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsFatal reports whether err must end the run rather than be retried.
func IsFatal(err error) bool {
	var fatalErr FatalError
	if errors.As(err, &fatalErr) {
		return fatalErr.IsFatal()
	}
	return false
}
