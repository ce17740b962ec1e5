/*
Package session holds the authenticated identity and anchors the lifecycle
of every other component.

This file defines the Store, which owns the single active Session. All
transitions (set on login/register/bootstrap, clear on logout or failed
identity check) are pushed synchronously to registered listeners, which is
how the connection manager keeps its socket bound to the current session.
*/
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatsync/internal/model"
	"chatsync/internal/pkg/logx"
)

// API is the slice of the REST client the session store consumes.
type API interface {
	CurrentUser(ctx context.Context) (*model.Session, error)
	Login(ctx context.Context, identifier, password string) (*model.Session, error)
	Register(ctx context.Context, username, email, password string) (*model.Session, error)
	Logout(ctx context.Context) error
}

// Store owns the current Session. At most one session is active at a time.
type Store struct {
	// mu protects current and listeners.
	mu sync.RWMutex

	api API

	current *model.Session

	// listeners are invoked synchronously on every session transition,
	// keyed by subscription token.
	listeners map[string]func(*model.Session)

	// bootstrapOnce guarantees a single bootstrap per process lifetime.
	bootstrapOnce sync.Once

	logger zerolog.Logger
}

// NewStore constructs a session Store backed by the given API.
func NewStore(api API) *Store {
	return &Store{
		api:       api,
		listeners: make(map[string]func(*model.Session)),
		logger:    logx.Logger().With().Str("component", "SessionStore").Logger(),
	}
}

// Current returns a copy of the active session, or nil when signed out.
func (s *Store) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}

	session := *s.current
	return &session
}

// OnChange registers a listener invoked synchronously on every session
// transition with the new session (nil on clear). The returned function
// removes the listener.
func (s *Store) OnChange(fn func(*model.Session)) func() {
	token := uuid.NewString()

	s.mu.Lock()
	s.listeners[token] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, token)
		s.mu.Unlock()
	}
}

// Bootstrap queries the backend for the current identity. On success the
// session is set; on any failure (including 401) it is cleared. Bootstrap
// always returns normally so callers observe state, not a thrown failure,
// and only the first call per process lifetime performs the check.
func (s *Store) Bootstrap(ctx context.Context) {
	s.bootstrapOnce.Do(func() {
		current, err := s.api.CurrentUser(ctx)
		if err != nil {
			s.logger.Info().Err(err).Msg("No existing session found during bootstrap")
			s.setSession(nil)
			return
		}

		s.logger.Info().Str("user_id", current.UserID).Msg("Session restored from existing cookie")
		s.setSession(current)
	})
}

// Login submits credentials. On success the session is set; on failure the
// prior state is left untouched and the coded error (carrying the server's
// message when present) is returned. Login never retries.
func (s *Store) Login(ctx context.Context, identifier, password string) error {
	current, err := s.api.Login(ctx, identifier, password)
	if err != nil {
		s.logger.Warn().Err(err).Str("identifier", identifier).Msg("Login failed")
		return err
	}

	s.logger.Info().Str("user_id", current.UserID).Msg("Login succeeded")
	s.setSession(current)
	return nil
}

// Register creates an account with the same contract as Login.
func (s *Store) Register(ctx context.Context, username, email, password string) error {
	current, err := s.api.Register(ctx, username, email, password)
	if err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("Registration failed")
		return err
	}

	s.logger.Info().Str("user_id", current.UserID).Msg("Registration succeeded")
	s.setSession(current)
	return nil
}

// Logout requests server-side session invalidation, then unconditionally
// clears the local session. A transport failure is logged and ignored so
// local state never retains a dead session.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Server-side logout failed; clearing local session anyway")
	}

	s.setSession(nil)
}

// setSession stores the new session and notifies listeners synchronously.
// Listeners run outside the lock so they may call back into the store.
func (s *Store) setSession(session *model.Session) {
	s.mu.Lock()
	s.current = session

	notify := make([]func(*model.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		notify = append(notify, fn)
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn(session)
	}
}
