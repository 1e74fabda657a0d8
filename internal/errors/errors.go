package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeConfig      Code = 3
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeNoRoute     Code = 14
	CodeReverted    Code = 15
	CodeSigner      Code = 16
	CodeTimeout     Code = 17
	CodeBlocked     Code = 18
)

// Error is a typed error that carries a stable error code. Action handlers
// return these wrapped with a short action prefix, for display to the end
// user verbatim.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithPrefix prepends a short context prefix, keeping the wrapped error's
// code so exit-code mapping still sees the original failure. Untyped causes
// surface as CodeInternal.
func WithPrefix(prefix string, err error) error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	if typed, ok := As(err); ok {
		code = typed.Code
	}
	return &Error{Code: code, Message: prefix, Cause: err}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func IsCode(err error, code Code) bool {
	if typed, ok := As(err); ok {
		return typed.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if typed, ok := As(err); ok {
		return int(typed.Code)
	}
	return int(CodeInternal)
}
