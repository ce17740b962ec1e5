package session

import (
	"context"
	"sync"
	"testing"

	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
)

// fakeAPI scripts the auth endpoints for store tests.
type fakeAPI struct {
	mu sync.Mutex

	currentUser *model.Session
	currentErr  error

	loginResult *model.Session
	loginErr    error

	logoutErr error

	currentCalls int
	logoutCalls  int
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCalls++
	return f.currentUser, f.currentErr
}

func (f *fakeAPI) Login(ctx context.Context, identifier, password string) (*model.Session, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAPI) Register(ctx context.Context, username, email, password string) (*model.Session, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func TestBootstrapFailureClearsSession(t *testing.T) {
	api := &fakeAPI{currentErr: errs.New(errs.ErrUnauthorized)}
	store := NewStore(api)

	store.Bootstrap(context.Background())

	if store.Current() != nil {
		t.Fatal("session should be nil after a failed bootstrap")
	}
}

func TestBootstrapRunsExactlyOnce(t *testing.T) {
	api := &fakeAPI{currentUser: &model.Session{UserID: "u1", Username: "ada"}}
	store := NewStore(api)

	store.Bootstrap(context.Background())
	store.Bootstrap(context.Background())

	if api.currentCalls != 1 {
		t.Fatalf("expected one identity check, got %d", api.currentCalls)
	}
	if got := store.Current(); got == nil || got.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestLoginFailureLeavesSessionUntouched(t *testing.T) {
	api := &fakeAPI{currentUser: &model.Session{UserID: "u1", Username: "ada"}}
	store := NewStore(api)
	store.Bootstrap(context.Background())

	api.loginErr = errs.New(errs.ErrInvalidCredentials)

	if err := store.Login(context.Background(), "eve", "wrong"); err == nil {
		t.Fatal("expected login to fail")
	}

	if got := store.Current(); got == nil || got.UserID != "u1" {
		t.Fatalf("prior session should be untouched, got %+v", got)
	}
}

func TestLoginNotifiesListenersSynchronously(t *testing.T) {
	api := &fakeAPI{loginResult: &model.Session{UserID: "u2", Username: "bob"}}
	store := NewStore(api)

	var seen []*model.Session
	store.OnChange(func(s *model.Session) {
		seen = append(seen, s)
	})

	if err := store.Login(context.Background(), "bob", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	if len(seen) != 1 || seen[0] == nil || seen[0].UserID != "u2" {
		t.Fatalf("listener saw %+v", seen)
	}
}

func TestLogoutClearsDespiteServerFailure(t *testing.T) {
	api := &fakeAPI{
		loginResult: &model.Session{UserID: "u2", Username: "bob"},
		logoutErr:   errs.New(errs.ErrNetwork),
	}
	store := NewStore(api)

	if err := store.Login(context.Background(), "bob", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	store.Logout(context.Background())

	if store.Current() != nil {
		t.Fatal("local session must be cleared even when server logout fails")
	}
	if api.logoutCalls != 1 {
		t.Fatalf("expected a best-effort logout call, got %d", api.logoutCalls)
	}
}

func TestOnChangeUnsubscribe(t *testing.T) {
	api := &fakeAPI{loginResult: &model.Session{UserID: "u2", Username: "bob"}}
	store := NewStore(api)

	calls := 0
	unsub := store.OnChange(func(*model.Session) { calls++ })
	unsub()

	if err := store.Login(context.Background(), "bob", "pw"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	if calls != 0 {
		t.Fatalf("unsubscribed listener was invoked %d times", calls)
	}
}
