package router

import (
	"context"
	"errors"
	"fmt"
)

// UserError carries a message meant for the chat user. Other handler
// errors are only logged and the user sees a generic reply.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *UserError) Unwrap() error { return e.Err }

func Userf(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

func userError(err error) string {
	var ue *UserError
	switch {
	case errors.As(err, &ue):
		return ue.Msg
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out, try again."
	default:
		return "Something went wrong."
	}
}
