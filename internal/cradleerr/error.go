// Package cradleerr defines a structured error type for subsystem
// boundaries. The LLM router is the only package that returns it.
package cradleerr

import (
	"errors"
	"fmt"
)

// Code classifies an error independent of its message, so callers can
// branch on behavior instead of matching strings.
type Code string

const (
	CodeTransport      Code = "TRANSPORT"
	CodeAuth           Code = "AUTHENTICATION"
	CodeRateLimit      Code = "RATE_LIMIT"
	CodeTimeout        Code = "TIMEOUT"
	CodeInvalidPlan    Code = "INVALID_PLAN"
	CodeProtectedFile  Code = "PROTECTED_FILE"
	CodePolicyViolation Code = "POLICY_VIOLATION"
	CodeExhausted      Code = "PROVIDERS_EXHAUSTED"
	CodeUpstream       Code = "UPSTREAM_ERROR"
	CodeInternal       Code = "INTERNAL"
)

// Error is a structured error carrying a code, a human message, whether
// retrying is meaningful, and the provider/component that raised it.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Provider  string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks whether the caller should retry (failover, in the
// router's case, is the only form of retry — this flag is informational).
func (e *Error) WithRetryable(r bool) *Error {
	e.Retryable = r
	return e
}

// WithProvider tags the error with the component/provider name that raised it.
func (e *Error) WithProvider(name string) *Error {
	e.Provider = name
	return e
}

// IsRetryable reports whether err is a *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCode extracts the Code from err, or "" if err is not a *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
