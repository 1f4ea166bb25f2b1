package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig   = "CONFIG"
	ErrAuth     = "AUTH"
	ErrConnect  = "CONNECT"
	ErrExec     = "EXEC"
	ErrNotFound = "NOT_FOUND"
	ErrScript   = "SCRIPT"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// The rendered form is:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrConnect code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrConnect,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface with the multi-line CLI layout.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Short returns a single-line form suitable for logs and API payloads.
func (e *Error) Short() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + oneLine(e.Cause)
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var gsErr *Error
	if errors.As(err, &gsErr) {
		return gsErr.Code == code
	}
	return false
}

// Code returns the code of the outermost structured Error in the chain,
// or an empty string when there is none.
func Code(err error) string {
	var gsErr *Error
	if errors.As(err, &gsErr) {
		return gsErr.Code
	}
	return ""
}

// Message flattens any error into one line.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return oneLine(err)
}

func oneLine(err error) string {
	var gsErr *Error
	if errors.As(err, &gsErr) && gsErr == err {
		return gsErr.Short()
	}
	if errors.As(err, &gsErr) {
		// Structured error somewhere below a plain wrapper
		return strings.Join(strings.Fields(err.Error()), " ")
	}
	return strings.TrimSpace(strings.ReplaceAll(err.Error(), "\n", " "))
}
