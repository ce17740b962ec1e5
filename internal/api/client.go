/*
Package api implements the REST client for the chat backend.

All endpoints live under a common API prefix and authenticate via a cookie
session held in the client's cookie jar. Responses use the backend's JSON
envelope {code, message, data}; the message field of a failed response is
surfaced verbatim as the user-facing error text.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
)

// requestTimeout bounds every REST call issued by the client.
const requestTimeout = 15 * time.Second

// Client is the REST client for the backend API surface.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// envelope is the backend's standard JSON response structure.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewClient constructs a Client for the given base URL (including the API
// prefix, e.g. http://localhost:8080/api/v1). The client owns a cookie jar
// holding the session cookie; the jar is shared with the socket dialer.
func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
		},
		logger: logx.Logger().With().Str("component", "ApiClient").Logger(),
	}, nil
}

// Jar exposes the cookie jar so the websocket dialer can present the same
// session cookie.
func (c *Client) Jar() http.CookieJar {
	return c.httpc.Jar
}

// doJSON issues a request against path and decodes the response envelope.
// A non-2xx response becomes an *errs.Error carrying the server message;
// transport failures map to ErrNetwork. When out is non-nil the envelope's
// data field is unmarshaled into it.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.New(errs.ErrInvalidParams)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errs.New(errs.ErrInvalidParams)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("Request transport failure")
		return errs.New(errs.ErrNetwork)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		// error statuses without a decodable body still need a coded error
		if res.StatusCode >= 400 {
			return errs.FromResponse(res.StatusCode, "")
		}

		c.logger.Error().Err(err).Str("path", path).Msg("Failed to decode response envelope")
		return errs.New(errs.ErrInvalidResponse)
	}

	if res.StatusCode >= 400 {
		return errs.FromResponse(res.StatusCode, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.logger.Error().Err(err).Str("path", path).Msg("Failed to decode response data")
			return errs.New(errs.ErrInvalidResponse)
		}
	}

	return nil
}

// CurrentUser fetches the identity bound to the session cookie.
func (c *Client) CurrentUser(ctx context.Context) (*model.Session, error) {
	var session model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/auth/current-user", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Login submits credentials and returns the authenticated identity.
func (c *Client) Login(ctx context.Context, identifier, password string) (*model.Session, error) {
	input := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var session model.Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", input, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Register creates an account and returns the authenticated identity.
func (c *Client) Register(ctx context.Context, username, email, password string) (*model.Session, error) {
	input := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}

	var session model.Session
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", input, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout invalidates the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Chats fetches the full conversation list for the session.
func (c *Client) Chats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// SearchUsers returns users matching the query, excluding the caller.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.Participant, error) {
	var users []model.Participant
	path := "/chats/users?search=" + url.QueryEscape(query)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateOrGetChat requests creation (or lookup) of a one-to-one chat with
// the target user.
func (c *Client) CreateOrGetChat(ctx context.Context, userID string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPost, "/chats/c/"+url.PathEscape(userID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// Messages fetches the historical message sequence for a chat.
func (c *Client) Messages(ctx context.Context, chatID string) ([]model.Message, error) {
	var messages []model.Message
	if err := c.doJSON(ctx, http.MethodGet, "/messages/"+url.PathEscape(chatID), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts new message content to a chat and returns the
// server's canonical Message.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	input := map[string]string{
		"content": content,
	}

	var message model.Message
	if err := c.doJSON(ctx, http.MethodPost, "/messages/"+url.PathEscape(chatID), input, &message); err != nil {
		return nil, err
	}
	return &message, nil
}
