/*
Package socket owns the live websocket connection bound to the current
session.

This file defines the Manager, which establishes the socket when a session
appears, tears it down when the session clears, redials with capped backoff
on transport drops, re-joins the active chat room after every (re)connect,
and dispatches inbound events to typed subscriptions.
*/
package socket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/limiter"
	"chatsync/internal/pkg/logx"
)

// State is the connection lifecycle state.
type State int

const (
	// Disconnected means no socket exists (no session, or between redials).
	Disconnected State = iota

	// Connecting means a dial is in flight.
	Connecting

	// Connected means the socket is live and events flow.
	Connected
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	// timeout for the websocket handshake.
	dialTimeout = 10 * time.Second

	// timeout duration for writing a frame to the connection.
	writeWait = 10 * time.Second

	// redial backoff bounds after a transport drop.
	defaultRetryMin = time.Second
	defaultRetryMax = 30 * time.Second

	// typing signal budget per chat. Stop signals are never limited.
	typingEventRate  = rate.Limit(5)
	typingEventBurst = 10
)

// Manager owns the one live socket. All inbound and outbound traffic is
// mediated through its subscribe/emit surface; no other component touches
// the connection.
type Manager struct {
	socketURL string
	dialer    websocket.Dialer

	// mu protects conn, state, activeChat, stop and generation.
	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	activeChat string

	// stop is non-nil while a run loop is live; closing it ends the loop.
	stop chan struct{}

	// generation invalidates run loops left over from a previous Start.
	generation int

	// writeMu serializes frame writes on the shared connection.
	writeMu sync.Mutex

	typingLimiter *limiter.EventLimiter

	// handlersMu protects the subscription maps, keyed by token.
	handlersMu          sync.RWMutex
	messageHandlers     map[string]func(model.Message)
	typingHandlers      map[string]func(string)
	stopTypingHandlers  map[string]func(string)
	chatCreatedHandlers map[string]func(model.Chat)

	retryMin time.Duration
	retryMax time.Duration

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewManager constructs a Manager dialing socketURL. The cookie jar must be
// the REST client's jar so the dial presents the same session cookie.
func NewManager(socketURL string, jar http.CookieJar) *Manager {
	return &Manager{
		socketURL: socketURL,
		dialer: websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: dialTimeout,
		},
		typingLimiter:       limiter.NewEventLimiter(typingEventRate, typingEventBurst),
		messageHandlers:     make(map[string]func(model.Message)),
		typingHandlers:      make(map[string]func(string)),
		stopTypingHandlers:  make(map[string]func(string)),
		chatCreatedHandlers: make(map[string]func(model.Chat)),
		retryMin:            defaultRetryMin,
		retryMax:            defaultRetryMax,
		logger:              logx.Logger().With().Str("component", "ConnectionManager").Logger(),
	}
}

// Start launches the connect/read/redial loop. It is a no-op while a loop
// is already live, so repeated session notifications are safe.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return
	}

	m.generation++
	m.stop = make(chan struct{})
	m.state = Connecting

	m.wg.Add(1)
	go m.run(m.generation, m.stop)

	m.logger.Info().Msg("Connection loop started")
}

// Stop releases the socket and halts redialing. Called when the session
// clears; the active chat is forgotten with it.
func (m *Manager) Stop() {
	m.mu.Lock()

	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.state = Disconnected
	m.activeChat = ""

	m.mu.Unlock()

	m.logger.Info().Msg("Connection loop stopped")
}

// Close stops the manager and waits for its goroutine to exit.
func (m *Manager) Close() {
	m.Stop()
	m.wg.Wait()
	m.typingLimiter.Close()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveChat returns the chat currently joined for live updates.
func (m *Manager) ActiveChat() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeChat
}

// run dials, reads until the connection drops, and redials with capped
// backoff, until its stop channel closes or a newer generation takes over.
func (m *Manager) run(gen int, stop chan struct{}) {
	defer m.wg.Done()

	backoff := m.retryMin

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := m.dialer.Dial(m.socketURL, nil)
		if err != nil {
			m.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Socket dial failed")

			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > m.retryMax {
				backoff = m.retryMax
			}
			continue
		}

		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		select {
		case <-stop:
			m.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}

		m.conn = conn
		m.state = Connected
		active := m.activeChat
		m.mu.Unlock()

		backoff = m.retryMin
		m.logger.Info().Str("url", m.socketURL).Msg("Socket connected")

		// server-side room membership must match the currently viewed
		// chat after any reconnect
		if active != "" {
			if err := m.emit(EventJoinChat, active); err != nil {
				m.logger.Warn().Err(err).Str("chat_id", active).Msg("Failed to rejoin active chat")
			}
		}

		m.readLoop(conn)

		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
			if m.generation == gen {
				m.state = Connecting
			}
		}
		m.mu.Unlock()

		select {
		case <-stop:
			return
		default:
			m.logger.Warn().Msg("Socket dropped; reconnecting")
		}
	}
}

// readLoop decodes frames until the connection errors out.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Info().Err(err).Msg("Socket read ended")
			}
			return
		}

		m.dispatch(frame)
	}
}

// dispatch fans an inbound frame out to the registered handlers. Handlers
// run on the read goroutine; stores do their own locking.
func (m *Manager) dispatch(frame Frame) {
	switch frame.Event {
	case EventMessageReceived:
		var message model.Message
		if err := json.Unmarshal(frame.Data, &message); err != nil {
			m.logger.Warn().Err(err).Msg("Invalid messageReceived payload")
			return
		}
		for _, fn := range m.snapshotMessageHandlers() {
			fn(message)
		}

	case EventTyping, EventStopTyping:
		var chatID string
		if err := json.Unmarshal(frame.Data, &chatID); err != nil {
			m.logger.Warn().Err(err).Str("event", frame.Event).Msg("Invalid typing payload")
			return
		}
		for _, fn := range m.snapshotTypingHandlers(frame.Event == EventTyping) {
			fn(chatID)
		}

	case EventChatCreated:
		var chat model.Chat
		if err := json.Unmarshal(frame.Data, &chat); err != nil {
			m.logger.Warn().Err(err).Msg("Invalid chatCreated payload")
			return
		}
		for _, fn := range m.snapshotChatCreatedHandlers() {
			fn(chat)
		}

	default:
		m.logger.Debug().Str("event", frame.Event).Msg("Unsupported inbound event")
	}
}

// SelectChat records chatID as the active chat and, when connected, emits
// a leave for the previous chat followed by a join for the new one. Only
// one chat is active at a time; the recorded id is what gets re-joined
// after a reconnect.
func (m *Manager) SelectChat(chatID string) {
	m.mu.Lock()
	previous := m.activeChat
	m.activeChat = chatID
	connected := m.state == Connected && m.conn != nil
	m.mu.Unlock()

	if !connected {
		return
	}

	if previous != "" && previous != chatID {
		if err := m.emit(EventLeaveChat, previous); err != nil {
			m.logger.Debug().Err(err).Str("chat_id", previous).Msg("Failed to emit leaveChat")
		}
	}

	if chatID != "" {
		if err := m.emit(EventJoinChat, chatID); err != nil {
			m.logger.Warn().Err(err).Str("chat_id", chatID).Msg("Failed to emit joinChat")
		}
	}
}

// EmitTyping sends a typing signal for chatID, subject to the per-chat
// event budget. Throttled signals are dropped silently; the debounce in
// the typing coordinator makes them redundant.
func (m *Manager) EmitTyping(chatID string) error {
	if !m.typingLimiter.Allow(chatID) {
		m.logger.Debug().Str("chat_id", chatID).Msg("Typing signal throttled")
		return nil
	}

	return m.emit(EventTyping, chatID)
}

// EmitStopTyping sends a stop-typing signal for chatID.
func (m *Manager) EmitStopTyping(chatID string) error {
	return m.emit(EventStopTyping, chatID)
}

// emit writes a frame to the live connection.
func (m *Manager) emit(event string, chatID string) error {
	frame, err := NewFrame(event, chatID)
	if err != nil {
		return errs.New(errs.ErrInvalidParams)
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()

	if conn == nil || !connected {
		return errs.New(errs.ErrSocketClosed)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errs.New(errs.ErrSocketClosed)
	}

	if err := conn.WriteJSON(frame); err != nil {
		m.logger.Warn().Err(err).Str("event", event).Msg("Frame write failed")
		return errs.New(errs.ErrSocketClosed)
	}

	return nil
}

// OnMessage registers a handler for inbound messageReceived events and
// returns its unsubscribe function.
func (m *Manager) OnMessage(fn func(model.Message)) func() {
	token := uuid.NewString()

	m.handlersMu.Lock()
	m.messageHandlers[token] = fn
	m.handlersMu.Unlock()

	return func() {
		m.handlersMu.Lock()
		delete(m.messageHandlers, token)
		m.handlersMu.Unlock()
	}
}

// OnTyping registers a handler for inbound typing events.
func (m *Manager) OnTyping(fn func(chatID string)) func() {
	token := uuid.NewString()

	m.handlersMu.Lock()
	m.typingHandlers[token] = fn
	m.handlersMu.Unlock()

	return func() {
		m.handlersMu.Lock()
		delete(m.typingHandlers, token)
		m.handlersMu.Unlock()
	}
}

// OnStopTyping registers a handler for inbound stopTyping events.
func (m *Manager) OnStopTyping(fn func(chatID string)) func() {
	token := uuid.NewString()

	m.handlersMu.Lock()
	m.stopTypingHandlers[token] = fn
	m.handlersMu.Unlock()

	return func() {
		m.handlersMu.Lock()
		delete(m.stopTypingHandlers, token)
		m.handlersMu.Unlock()
	}
}

// OnChatCreated registers a handler for inbound chatCreated events.
func (m *Manager) OnChatCreated(fn func(model.Chat)) func() {
	token := uuid.NewString()

	m.handlersMu.Lock()
	m.chatCreatedHandlers[token] = fn
	m.handlersMu.Unlock()

	return func() {
		m.handlersMu.Lock()
		delete(m.chatCreatedHandlers, token)
		m.handlersMu.Unlock()
	}
}

func (m *Manager) snapshotMessageHandlers() []func(model.Message) {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()

	handlers := make([]func(model.Message), 0, len(m.messageHandlers))
	for _, fn := range m.messageHandlers {
		handlers = append(handlers, fn)
	}
	return handlers
}

func (m *Manager) snapshotTypingHandlers(typing bool) []func(string) {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()

	source := m.stopTypingHandlers
	if typing {
		source = m.typingHandlers
	}

	handlers := make([]func(string), 0, len(source))
	for _, fn := range source {
		handlers = append(handlers, fn)
	}
	return handlers
}

func (m *Manager) snapshotChatCreatedHandlers() []func(model.Chat) {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()

	handlers := make([]func(model.Chat), 0, len(m.chatCreatedHandlers))
	for _, fn := range m.chatCreatedHandlers {
		handlers = append(handlers, fn)
	}
	return handlers
}
