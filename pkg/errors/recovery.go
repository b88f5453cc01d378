package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// RecoverPanic turns a value returned by recover into a fatal internal
// error. The stack of the panicking goroutine is kept as a detail.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// StackTrace returns the stack recorded by RecoverPanic, if any.
func StackTrace(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return ""
	}
	s, _ := appErr.Details["stack_trace"].(string)
	return s
}
