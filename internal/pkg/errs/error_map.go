/*
Package errs provides the coded error type used across the sync core.

This file defines the map from error codes to their default user-facing
messages. Server-originated errors override the message with the server's
own text.
*/
package errs

// errorMap stores the default Error value for every code.
var errorMap = map[int]Error{
	// 1xxx: Local Validation Errors
	ErrInvalidParams:   {Code: ErrInvalidParams, Message: "Invalid request."},
	ErrEmptyMessage:    {Code: ErrEmptyMessage, Message: "Message cannot be empty."},
	ErrInvalidResponse: {Code: ErrInvalidResponse, Message: "Unexpected server response."},

	// 2xxx: Chat and Message Domain Errors
	ErrNotFound: {Code: ErrNotFound, Message: "Not found."},

	// 3xxx: Authentication Errors
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue."},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password."},

	// 4xxx: Transport Errors
	ErrNetwork:      {Code: ErrNetwork, Message: "Could not reach the server. Please try again."},
	ErrSocketClosed: {Code: ErrSocketClosed, Message: "Connection lost. Reconnecting..."},

	// 5xxx: Internal Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again."},
}
