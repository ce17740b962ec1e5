/*
Package timeline maintains the per-chat message sequences.

Append is the single merge point for fetched history, server push, and the
canonical echo of a local send: a message already present by id is never
inserted twice, and insertion keeps each timeline ordered by
(createdAt, id). A history fetch that resolves after the user has switched
chats is discarded.
*/
package timeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
)

// API is the slice of the REST client the timeline store consumes.
type API interface {
	Messages(ctx context.Context, chatID string) ([]model.Message, error)
	SendMessage(ctx context.Context, chatID, content string) (*model.Message, error)
}

// Store holds the message timeline of every chat touched this session.
type Store struct {
	// mu protects timelines, active and listeners.
	mu sync.RWMutex

	api API

	// timelines maps chat id to its ordered message sequence.
	timelines map[string][]model.Message

	// active is the chat id currently being tracked; a history fetch only
	// commits if its chat is still the active one.
	active string

	// listeners are notified with the chat id after every timeline
	// mutation, keyed by token.
	listeners map[string]func(chatID string)

	logger zerolog.Logger
}

// NewStore constructs a timeline Store backed by the given API.
func NewStore(api API) *Store {
	return &Store{
		api:       api,
		timelines: make(map[string][]model.Message),
		listeners: make(map[string]func(string)),
		logger:    logx.Logger().With().Str("component", "TimelineStore").Logger(),
	}
}

// Track records chatID as the chat whose history the consumer is viewing.
// Switching tracked chats logically cancels interest in any in-flight
// LoadFor for the previous chat.
func (s *Store) Track(chatID string) {
	s.mu.Lock()
	s.active = chatID
	s.mu.Unlock()
}

// Active returns the currently tracked chat id.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// LoadFor fetches the historical message sequence for chatID and replaces
// the in-memory timeline for that chat. The result is only committed when
// chatID is still the tracked chat; a stale response is discarded so it
// can never clobber another chat's view.
func (s *Store) LoadFor(ctx context.Context, chatID string) error {
	messages, err := s.api.Messages(ctx, chatID)
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("History fetch failed")
		return err
	}

	s.mu.Lock()

	if s.active != chatID {
		s.mu.Unlock()
		s.logger.Debug().Str("chat_id", chatID).Str("active", s.active).Msg("Discarding stale history response")
		return nil
	}

	// normalize through the same dedupe/ordering path as live pushes
	s.timelines[chatID] = nil
	for _, message := range messages {
		message.ChatID = chatID
		s.insertLocked(message)
	}

	s.mu.Unlock()
	s.notify(chatID)
	return nil
}

// Append merges a message into its chat's timeline. It is idempotent by
// message id and keeps (createdAt, id) order regardless of whether the
// message came from a fetch, a push, or a local echo. Messages for chats
// other than the tracked one are merged too, so the timeline is correct
// when the user later opens that chat.
func (s *Store) Append(message model.Message) {
	s.mu.Lock()
	inserted := s.insertLocked(message)
	s.mu.Unlock()

	if inserted {
		s.notify(message.ChatID)
	}
}

// insertLocked performs the ordered, deduplicated insert. Caller holds mu.
func (s *Store) insertLocked(message model.Message) bool {
	timeline := s.timelines[message.ChatID]

	for _, existing := range timeline {
		if existing.ID == message.ID {
			return false
		}
	}

	idx := sort.Search(len(timeline), func(i int) bool {
		return message.Less(timeline[i])
	})

	timeline = append(timeline, model.Message{})
	copy(timeline[idx+1:], timeline[idx:])
	timeline[idx] = message

	s.timelines[message.ChatID] = timeline
	return true
}

// SendMessage posts trimmed content to chatID. Empty or whitespace-only
// content is rejected locally before any request is issued. On success the
// server's canonical message (not a locally fabricated one) is appended
// and returned; on failure the error is surfaced and nothing is retried.
func (s *Store) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errs.New(errs.ErrEmptyMessage)
	}

	message, err := s.api.SendMessage(ctx, chatID, trimmed)
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("Message send failed")
		return nil, err
	}

	s.Append(*message)
	return message, nil
}

// Messages returns a snapshot copy of the timeline for chatID.
func (s *Store) Messages(chatID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	timeline := s.timelines[chatID]
	snapshot := make([]model.Message, len(timeline))
	copy(snapshot, timeline)
	return snapshot
}

// Clear drops all timelines, used when the session ends.
func (s *Store) Clear() {
	s.mu.Lock()
	s.timelines = make(map[string][]model.Message)
	s.active = ""
	s.mu.Unlock()
}

// OnChange registers a listener notified with the chat id after every
// timeline mutation. The returned function removes the listener.
func (s *Store) OnChange(fn func(chatID string)) func() {
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
func (s *Store) notify(chatID string) {
	s.mu.RLock()
	listeners := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(chatID)
	}
}
