/*
Package chatlist maintains the ordered collection of conversation
summaries for the signed-in user.

New chats are inserted at the head exactly once; new messages update the
denormalized latest-message pointer without reordering the list.
*/
package chatlist

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatsync/internal/model"
	"chatsync/internal/pkg/logx"
)

// API is the slice of the REST client the chat list consumes.
type API interface {
	Chats(ctx context.Context) ([]model.Chat, error)
}

// Store holds the ordered chat list.
type Store struct {
	// mu protects chats and listeners.
	mu sync.RWMutex

	api API

	chats []model.Chat

	// listeners are notified after every list mutation, keyed by token.
	listeners map[string]func()

	logger zerolog.Logger
}

// NewStore constructs a chat list Store backed by the given API.
func NewStore(api API) *Store {
	return &Store{
		api:       api,
		listeners: make(map[string]func()),
		logger:    logx.Logger().With().Str("component", "ChatListStore").Logger(),
	}
}

// Load fetches the full conversation list, replacing local state. A fetch
// failure is logged and yields an empty list rather than a blocking error,
// so the consumer stays usable with zero chats.
func (s *Store) Load(ctx context.Context) {
	chats, err := s.api.Chats(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Chat list fetch failed; falling back to empty list")
		chats = nil
	}

	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()

	s.notify()
}

// Upsert inserts a newly created chat at the head of the list if its id is
// not already present. A duplicate notification neither creates a second
// entry nor reorders the existing one.
func (s *Store) Upsert(chat model.Chat) {
	s.mu.Lock()

	for _, existing := range s.chats {
		if existing.ID == chat.ID {
			s.mu.Unlock()
			return
		}
	}

	s.chats = append([]model.Chat{chat}, s.chats...)
	s.mu.Unlock()

	s.logger.Debug().Str("chat_id", chat.ID).Msg("Chat inserted at head of list")
	s.notify()
}

// BumpOnMessage updates the latest-message pointer of the chat the message
// belongs to. List order is left unchanged. An unknown chat id is ignored;
// the list may simply not have been loaded yet.
func (s *Store) BumpOnMessage(message model.Message) {
	s.mu.Lock()

	updated := false
	for i := range s.chats {
		if s.chats[i].ID == message.ChatID {
			msg := message
			s.chats[i].LatestMessage = &msg
			updated = true
			break
		}
	}

	s.mu.Unlock()

	if updated {
		s.notify()
	} else {
		s.logger.Debug().Str("chat_id", message.ChatID).Msg("Message for chat not in list; skipping bump")
	}
}

// Chats returns a snapshot copy of the ordered chat list.
func (s *Store) Chats() []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]model.Chat, len(s.chats))
	copy(snapshot, s.chats)
	return snapshot
}

// Get returns the chat with the given id, if present.
func (s *Store) Get(chatID string) (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chat := range s.chats {
		if chat.ID == chatID {
			return chat, true
		}
	}
	return model.Chat{}, false
}

// Clear drops the list, used when the session ends.
func (s *Store) Clear() {
	s.mu.Lock()
	s.chats = nil
	s.mu.Unlock()

	s.notify()
}

// OnChange registers a listener notified after every list mutation. The
// returned function removes the listener.
func (s *Store) OnChange(fn func()) func() {
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

// notify invokes listeners outside the lock.
func (s *Store) notify() {
	s.mu.RLock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
