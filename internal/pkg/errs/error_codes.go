/*
Package errs provides the coded error type used across the sync core.

These constants identify the failure classes the client distinguishes:
local validation, chat/message domain errors, authentication failures,
and transport failures.
*/
package errs

// 1xxx: Local Validation Errors (rejected before any request is sent)
const (
	// ErrInvalidParams indicates a request was malformed or incomplete.
	ErrInvalidParams = 1001

	// ErrEmptyMessage indicates a message send with empty or
	// whitespace-only content.
	ErrEmptyMessage = 1002

	// ErrInvalidResponse indicates the server returned a payload the
	// client could not decode.
	ErrInvalidResponse = 1003
)

// 2xxx: Chat and Message Domain Errors
const (
	// ErrNotFound indicates an absent resource (chat, user, history).
	// Consumers render an empty state, not an error banner.
	ErrNotFound = 2101
)

// 3xxx: Authentication Errors
const (
	// ErrUnauthorized indicates a missing or expired session. The local
	// session is cleared; the operation is never retried.
	ErrUnauthorized = 3001

	// ErrInvalidCredentials indicates a rejected login attempt.
	ErrInvalidCredentials = 3002
)

// 4xxx: Transport Errors
const (
	// ErrNetwork indicates the request never produced an HTTP response
	// (connection refused, timeout, DNS failure).
	ErrNetwork = 4001

	// ErrSocketClosed indicates an emit was attempted while the socket
	// was not connected.
	ErrSocketClosed = 4002
)

// 5xxx: Internal Errors
const (
	// ErrUnknown represents an unclassified failure.
	ErrUnknown = 5000
)
