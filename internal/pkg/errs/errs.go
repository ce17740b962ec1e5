/*
Package errs provides the coded error type used across the sync core.

This file defines the Error struct, which implements the standard Go error
interface and carries a business code, a user-facing message, and the HTTP
status (when the error originated from a REST response).
*/
package errs

import (
	"errors"
	"fmt"
	"strings"

	"chatsync/internal/pkg/logx"
)

// Error is the coded error used throughout the client.
type Error struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description. For server-originated
	// failures this is the server's message field, verbatim.
	Message string

	// Status is the HTTP status code of the failed response, if any.
	Status int
}

// Error implements the standard Go error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("error code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// New constructs an *Error from a predefined error code. The optional
// details are printf-style arguments for message templates that carry
// formatting placeholders. An unknown code falls back to ErrUnknown.
func New(code int, details ...any) *Error {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with a code missing from errorMap"),
			"unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &Error{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
		}
	}

	codedErr := templateErr

	if len(details) > 0 && strings.Contains(codedErr.Message, "%") {
		codedErr.Message = fmt.Sprintf(codedErr.Message, details...)
	}

	return &codedErr
}

// FromResponse builds an *Error out of a failed REST response, preserving
// the server-provided message verbatim when present. The code is chosen
// from the HTTP status so callers can branch on the error class.
func FromResponse(status int, serverMessage string) *Error {
	code := ErrUnknown
	switch {
	case status == 401 || status == 403:
		code = ErrUnauthorized
	case status == 404:
		code = ErrNotFound
	case status >= 400 && status < 500:
		code = ErrInvalidParams
	}

	message := serverMessage
	if message == "" {
		message = errorMap[code].Message
	}

	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// UserMessage extracts the user-facing message from any error, falling
// back to the generic unknown-error text for non-coded errors.
func UserMessage(err error) string {
	var codedErr *Error
	if errors.As(err, &codedErr) {
		return codedErr.Message
	}
	return errorMap[ErrUnknown].Message
}

// code reports the business code of err, or ErrUnknown for non-coded errors.
func code(err error) int {
	var codedErr *Error
	if errors.As(err, &codedErr) {
		return codedErr.Code
	}
	return ErrUnknown
}

// IsValidation reports whether err was rejected locally before any request
// was issued (1xxx codes).
func IsValidation(err error) bool {
	c := code(err)
	return c >= 1000 && c < 2000
}

// IsNotFound reports whether err denotes an absent resource, rendered as an
// empty state rather than an error banner.
func IsNotFound(err error) bool {
	return code(err) == ErrNotFound
}

// IsAuthFailure reports whether err denotes bad credentials or an expired
// session (3xxx codes). Auth failures clear the session and are never
// retried.
func IsAuthFailure(err error) bool {
	c := code(err)
	return c >= 3000 && c < 4000
}

// IsNetworkFailure reports whether err is a transport-level failure (4xxx
// codes), surfaced per call and never auto-retried.
func IsNetworkFailure(err error) bool {
	c := code(err)
	return c >= 4000 && c < 5000
}
