// Package errors carries startup failures that are shown to the operator
// verbatim, each tagged with a Code the CLI maps to an exit status.
package errors

import (
	"errors"
	"strings"
)

// Code groups failures by what the operator has to fix.
type Code string

const (
	// ErrConfig is a bad flag, file or environment value.
	ErrConfig Code = "CONFIG"
	// ErrNetwork is a listen or dial failure.
	ErrNetwork Code = "NETWORK"
	// ErrSensor is a host metric source that cannot be read at all.
	ErrSensor Code = "SENSOR"
)

// Error renders as a headline marked with ✗, then the cause and the hint as
// indented paragraphs when present.
type Error struct {
	Code       Code
	Message    string
	Suggestion string
	Cause      error
}

func New(code Code, message, suggestion string) *Error {
	return &Error{Code: code, Message: message, Suggestion: suggestion}
}

// WrapWithCode is New with an underlying cause kept for errors.Is and errors.As.
func WrapWithCode(err error, code Code, message, suggestion string) *Error {
	e := New(code, message, suggestion)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	parts := []string{"✗ " + e.Message}
	if e.Cause != nil {
		parts = append(parts, "  "+e.Cause.Error())
	}
	if e.Suggestion != "" {
		parts = append(parts, "  "+e.Suggestion)
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Code, true
}

// IsCode reports whether err's chain holds an *Error with the given code.
func IsCode(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
