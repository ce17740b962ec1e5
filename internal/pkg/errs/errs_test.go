package errs

import (
	"errors"
	"testing"
)

func TestNewKnownCode(t *testing.T) {
	err := New(ErrEmptyMessage)

	if err.Code != ErrEmptyMessage {
		t.Fatalf("unexpected code: got %d want %d", err.Code, ErrEmptyMessage)
	}
	if err.Message != "Message cannot be empty." {
		t.Fatalf("unexpected message: %q", err.Message)
	}
}

func TestNewUnknownCodeFallsBack(t *testing.T) {
	err := New(9999)

	if err.Code != ErrUnknown {
		t.Fatalf("expected fallback to ErrUnknown, got %d", err.Code)
	}
}

func TestFromResponsePreservesServerMessage(t *testing.T) {
	err := FromResponse(401, "Session expired. Please sign in again.")

	if !IsAuthFailure(err) {
		t.Fatalf("expected 401 to map to an auth failure, got code %d", err.Code)
	}
	if got := UserMessage(err); got != "Session expired. Please sign in again." {
		t.Fatalf("server message not preserved verbatim: %q", got)
	}
}

func TestFromResponseDefaultsMessage(t *testing.T) {
	err := FromResponse(404, "")

	if !IsNotFound(err) {
		t.Fatalf("expected 404 to map to not-found, got code %d", err.Code)
	}
	if err.Message == "" {
		t.Fatal("expected a default message for an empty server message")
	}
}

func TestTaxonomyHelpers(t *testing.T) {
	if !IsValidation(New(ErrEmptyMessage)) {
		t.Fatal("ErrEmptyMessage should classify as validation")
	}
	if !IsNetworkFailure(New(ErrNetwork)) {
		t.Fatal("ErrNetwork should classify as network failure")
	}
	if IsAuthFailure(New(ErrNetwork)) {
		t.Fatal("ErrNetwork should not classify as auth failure")
	}
}

func TestUserMessageFallbackForPlainErrors(t *testing.T) {
	got := UserMessage(errors.New("dial tcp: connection refused"))

	if got != "Something went wrong. Please try again." {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}
