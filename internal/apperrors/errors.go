// Package apperrors defines the error taxonomy shared by every Switchboard
// component, so that transport layers (HTTP responses, CLI exit codes,
// retry classification) can make decisions off a single Code field instead
// of string-matching or type-switching on underlying causes.
package apperrors

import "fmt"

// Code is one of the error kinds a Switchboard component can surface.
type Code string

const (
	CodeValidation       Code = "validation_error"
	CodePolicyViolation  Code = "policy_violation"
	CodeTimeout          Code = "timeout"
	CodeDownstreamFailure Code = "downstream_failure"
	CodeCircuitOpen      Code = "circuit_open"
	CodeOverload         Code = "overload"
	CodeRetryExhausted   Code = "retry_exhausted"
	CodeUnknown          Code = "unknown"
)

// AppError is the single error type returned across component boundaries.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NewPolicyViolation(message string) *AppError {
	return &AppError{Code: CodePolicyViolation, Message: message}
}

func NewTimeout(message string, err error) *AppError {
	return &AppError{Code: CodeTimeout, Message: message, Err: err}
}

func NewDownstreamFailure(message string, err error) *AppError {
	return &AppError{Code: CodeDownstreamFailure, Message: message, Err: err}
}

func NewCircuitOpen(target string) *AppError {
	return &AppError{Code: CodeCircuitOpen, Message: fmt.Sprintf("circuit open for target %q", target)}
}

func NewOverload(message string) *AppError {
	return &AppError{Code: CodeOverload, Message: message}
}

func NewRetryExhausted(message string, err error) *AppError {
	return &AppError{Code: CodeRetryExhausted, Message: message, Err: err}
}

func NewUnknown(message string, err error) *AppError {
	return &AppError{Code: CodeUnknown, Message: message, Err: err}
}

// As extracts an *AppError from err, walking the Unwrap chain.
func As(err error) (*AppError, bool) {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// CodeOf returns the Code of err if it (or something it wraps) is an
// *AppError, and CodeUnknown otherwise.
func CodeOf(err error) Code {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return CodeUnknown
}
