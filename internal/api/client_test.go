package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatsync/internal/pkg/errs"
)

func envelopeJSON(data any) []byte {
	raw, _ := json.Marshal(map[string]any{
		"code":    0,
		"message": "success",
		"data":    data,
	})
	return raw
}

func TestCurrentUserDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/current-user" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(envelopeJSON(map[string]string{"id": "u1", "username": "ada"}))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}

	session, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser err: %v", err)
	}
	if session.UserID != "u1" || session.Username != "ada" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestErrorMessageSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"code":    401,
			"message": "Incorrect username or password.",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}

	_, err = c.Login(context.Background(), "ada", "wrong")
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if !errs.IsAuthFailure(err) {
		t.Fatalf("expected auth failure classification, got %v", err)
	}
	if got := errs.UserMessage(err); got != "Incorrect username or password." {
		t.Fatalf("server message not preserved: %q", got)
	}
}

func TestTransportFailureMapsToNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c, err := NewClient(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}

	_, err = c.Chats(context.Background())
	if !errs.IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestCookiePersistsAcrossCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/v1/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok", Path: "/"})
			w.Write(envelopeJSON(map[string]string{"id": "u1", "username": "ada"}))

		case "/api/v1/chats":
			if cookie, err := r.Cookie("session"); err != nil || cookie.Value != "tok" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{"code": 401, "message": "Please sign in to continue."})
				return
			}
			w.Write(envelopeJSON([]any{}))
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/v1")
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}

	if _, err := c.Login(context.Background(), "ada", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	if _, err := c.Chats(context.Background()); err != nil {
		t.Fatalf("Chats should reuse the session cookie, got: %v", err)
	}
}
