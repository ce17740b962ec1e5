/*
Package client composes the session, socket, chat list, timeline and
typing components behind the single interface the presentation layer
consumes: snapshot getters plus change subscriptions on one side, actions
(login, register, logout, select chat, send message, start chat, search
users) on the other.
*/
package client

import (
	"context"

	"github.com/rs/zerolog"

	"chatsync/internal/api"
	"chatsync/internal/app/chatlist"
	"chatsync/internal/app/session"
	"chatsync/internal/app/socket"
	"chatsync/internal/app/timeline"
	"chatsync/internal/app/typing"
	"chatsync/internal/configs"
	"chatsync/internal/model"
	"chatsync/internal/pkg/logx"
)

// Client is the sync facade. It owns the wiring between the stores and the
// socket; consumers never touch the components directly.
type Client struct {
	api      *api.Client
	sessions *session.Store
	socket   *socket.Manager
	chats    *chatlist.Store
	timeline *timeline.Store
	typing   *typing.Coordinator

	// unsubs tears down the internal subscriptions on Close.
	unsubs []func()

	logger zerolog.Logger
}

// New wires up a Client against the endpoints in cfg.
func New(cfg *configs.AppConfig) (*Client, error) {
	apiClient, err := api.NewClient(cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}

	sock := socket.NewManager(cfg.SocketURL, apiClient.Jar())

	c := &Client{
		api:      apiClient,
		sessions: session.NewStore(apiClient),
		socket:   sock,
		chats:    chatlist.NewStore(apiClient),
		timeline: timeline.NewStore(apiClient),
		typing:   typing.NewCoordinator(sock),
		logger:   logx.Logger().With().Str("component", "SyncClient").Logger(),
	}

	c.unsubs = append(c.unsubs,
		c.sessions.OnChange(c.handleSessionChange),
		c.socket.OnMessage(c.handleMessageReceived),
		c.socket.OnTyping(c.typing.HandleTyping),
		c.socket.OnStopTyping(c.typing.HandleStopTyping),
		c.socket.OnChatCreated(c.chats.Upsert),
	)

	return c, nil
}

// handleSessionChange keeps the socket bound to the current session: a new
// session establishes the connection, a cleared session tears it down and
// drops the per-session stores.
func (c *Client) handleSessionChange(s *model.Session) {
	if s != nil {
		c.socket.Start()
		return
	}

	c.socket.Stop()
	c.chats.Clear()
	c.timeline.Clear()
}

// handleMessageReceived is the single entry point for pushed messages:
// merge into the owning chat's timeline (active or not) and refresh that
// chat's latest-message pointer.
func (c *Client) handleMessageReceived(message model.Message) {
	c.timeline.Append(message)
	c.chats.BumpOnMessage(message)
}

// Bootstrap performs the one-per-process identity check and, when a
// session exists, loads the chat list. It never returns an error; callers
// observe the resulting state.
func (c *Client) Bootstrap(ctx context.Context) {
	c.sessions.Bootstrap(ctx)

	if c.sessions.Current() != nil {
		c.chats.Load(ctx)
	}
}

// Login authenticates and, on success, loads the chat list.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	if err := c.sessions.Login(ctx, identifier, password); err != nil {
		return err
	}

	c.chats.Load(ctx)
	return nil
}

// Register creates an account and, on success, loads the chat list.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	if err := c.sessions.Register(ctx, username, email, password); err != nil {
		return err
	}

	c.chats.Load(ctx)
	return nil
}

// Logout invalidates the session; the socket teardown and store clearing
// follow from the session transition.
func (c *Client) Logout(ctx context.Context) {
	c.sessions.Logout(ctx)
}

// SelectChat makes chatID the active chat: stops any outstanding typing
// signal for the chat being left, resets the new chat's remote indicator,
// switches room membership, and loads the history. A stale history
// response from a previous selection is discarded by the timeline store.
func (c *Client) SelectChat(ctx context.Context, chatID string) error {
	previous := c.timeline.Active()
	if previous == chatID {
		return nil
	}

	if previous != "" {
		c.typing.StopFor(previous)
	}
	c.typing.Reset(chatID)

	c.timeline.Track(chatID)
	c.socket.SelectChat(chatID)

	return c.timeline.LoadFor(ctx, chatID)
}

// SendMessage posts content to chatID. A successful send also stops the
// local typing signal and refreshes the chat's latest-message pointer with
// the canonical message.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	message, err := c.timeline.SendMessage(ctx, chatID, content)
	if err != nil {
		return nil, err
	}

	c.typing.StopFor(chatID)
	c.chats.BumpOnMessage(*message)
	return message, nil
}

// Typed records a local keystroke in chatID, driving the debounced typing
// signal.
func (c *Client) Typed(chatID string) {
	c.typing.Keystroke(chatID)
}

// StartChat requests creation (or lookup) of a one-to-one chat with the
// target user and, on success, upserts it into the list and selects it.
func (c *Client) StartChat(ctx context.Context, targetUserID string) (*model.Chat, error) {
	chat, err := c.api.CreateOrGetChat(ctx, targetUserID)
	if err != nil {
		c.logger.Warn().Err(err).Str("target_user_id", targetUserID).Msg("Chat creation failed")
		return nil, err
	}

	c.chats.Upsert(*chat)

	if err := c.SelectChat(ctx, chat.ID); err != nil {
		return chat, err
	}
	return chat, nil
}

// SearchUsers is a pass-through query with no local caching; debouncing is
// the caller's concern.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.Participant, error) {
	return c.api.SearchUsers(ctx, query)
}

// Session returns a copy of the active session, or nil when signed out.
func (c *Client) Session() *model.Session {
	return c.sessions.Current()
}

// OnSessionChange subscribes to session transitions.
func (c *Client) OnSessionChange(fn func(*model.Session)) func() {
	return c.sessions.OnChange(fn)
}

// Chats returns a snapshot of the ordered chat list.
func (c *Client) Chats() []model.Chat {
	return c.chats.Chats()
}

// DisplayName resolves the label for chatID as seen by the current user.
func (c *Client) DisplayName(chatID string) string {
	chat, ok := c.chats.Get(chatID)
	if !ok {
		return ""
	}

	selfID := ""
	if s := c.sessions.Current(); s != nil {
		selfID = s.UserID
	}
	return chat.DisplayName(selfID)
}

// OnChatsChange subscribes to chat list mutations.
func (c *Client) OnChatsChange(fn func()) func() {
	return c.chats.OnChange(fn)
}

// ActiveChat returns the id of the chat currently being viewed.
func (c *Client) ActiveChat() string {
	return c.timeline.Active()
}

// Messages returns a snapshot of the timeline for chatID.
func (c *Client) Messages(chatID string) []model.Message {
	return c.timeline.Messages(chatID)
}

// OnTimelineChange subscribes to timeline mutations; the callback receives
// the id of the chat whose timeline changed.
func (c *Client) OnTimelineChange(fn func(chatID string)) func() {
	return c.timeline.OnChange(fn)
}

// RemoteTyping reports whether the other side of chatID is typing.
func (c *Client) RemoteTyping(chatID string) bool {
	return c.typing.RemoteTyping(chatID)
}

// OnTypingChange subscribes to remote typing indicator changes.
func (c *Client) OnTypingChange(fn func(chatID string, isTyping bool)) func() {
	return c.typing.OnRemoteChange(fn)
}

// ConnectionState reports the socket lifecycle state.
func (c *Client) ConnectionState() socket.State {
	return c.socket.State()
}

// Close tears down the internal subscriptions, the socket, and all timers.
func (c *Client) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil

	c.socket.Close()
	c.typing.Close()
}
