/*
Package devserver implements an in-memory stand-in for the chat backend.

This file defines the REST surface and its state: accounts, cookie
sessions, chats and message history, all held in memory. Responses use the
standard JSON envelope {code, message, data}; error envelopes carry the
user-facing message in the message field.
*/
package devserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"chatsync/internal/model"
	"chatsync/internal/pkg/logx"
)

// SessionCookie is the name of the cookie carrying the opaque session token.
const SessionCookie = "chatsync_session"

// account is a registered user.
type account struct {
	ID       string
	Username string
	Email    string
	Password string
}

// Server holds the in-memory backend state.
type Server struct {
	// mu protects all maps below.
	mu sync.RWMutex

	accounts   map[string]*account
	byUsername map[string]string
	byEmail    map[string]string

	// sessions maps opaque cookie token to user id.
	sessions map[string]string

	chats map[string]*model.Chat

	// chatOrder lists chat ids newest-first, the order GET /chats returns.
	chatOrder []string

	// pairIndex maps the sorted participant pair of a one-to-one chat to
	// its chat id, making chat creation idempotent.
	pairIndex map[string]string

	messages map[string][]model.Message

	hub      *hub
	upgrader websocket.Upgrader

	logger zerolog.Logger
}

// NewServer constructs a Server with an empty state and a running hub.
func NewServer() *Server {
	return &Server{
		accounts:   make(map[string]*account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]string),
		chats:      make(map[string]*model.Chat),
		pairIndex:  make(map[string]string),
		messages:   make(map[string][]model.Message),
		hub:        newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// local development fixture; origin enforcement belongs
				// to the real backend
				return true
			},
		},
		logger: logx.Logger().With().Str("component", "DevServer").Logger(),
	}
}

// Shutdown stops the websocket hub.
func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

// Router builds the HTTP routing table for the full backend contract.
// With no explicit origins every origin is allowed, which suits local
// development and tests.
func (s *Server) Router(allowedOrigins ...string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondSuccess(w, map[string]string{
			"status":  "ok",
			"service": "chatsync dev server",
		})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Get("/current-user", s.handleCurrentUser)
			auth.Post("/login", s.handleLogin)
			auth.Post("/register", s.handleRegister)
			auth.Post("/logout", s.handleLogout)
		})

		api.Route("/chats", func(chats chi.Router) {
			chats.Get("/", s.handleChats)
			chats.Get("/users", s.handleSearchUsers)
			chats.Post("/c/{userID}", s.handleCreateChat)
		})

		api.Route("/messages", func(messages chi.Router) {
			messages.Get("/{chatID}", s.handleMessages)
			messages.Post("/{chatID}", s.handleSendMessage)
		})
	})

	r.Get("/ws", s.handleSocket)

	return r
}

// jsonResponse is the standard envelope returned to clients.
type jsonResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload jsonResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondSuccess(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, jsonResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, jsonResponse{
		Code:    status,
		Message: message,
	})
}

// sessionUser resolves the account bound to the request's session cookie.
func (s *Server) sessionUser(r *http.Request) (*account, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.sessions[cookie.Value]
	if !ok {
		return nil, false
	}

	acc, ok := s.accounts[userID]
	return acc, ok
}

// issueSession creates a session token for acc and sets the cookie.
func (s *Server) issueSession(w http.ResponseWriter, acc *account) {
	token := uuid.NewString()

	s.mu.Lock()
	s.sessions[token] = acc.ID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionPayload(acc *account) model.Session {
	return model.Session{
		UserID:   acc.ID,
		Username: acc.Username,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Unsupported request format.")
		return
	}

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	if input.Username == "" || input.Email == "" || input.Password == "" {
		respondError(w, http.StatusBadRequest, "Username, email and password are required.")
		return
	}

	s.mu.Lock()

	if _, exists := s.byUsername[strings.ToLower(input.Username)]; exists {
		s.mu.Unlock()
		respondError(w, http.StatusConflict, "Username is already taken.")
		return
	}

	acc := &account{
		ID:       uuid.NewString(),
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	}
	s.accounts[acc.ID] = acc
	s.byUsername[strings.ToLower(acc.Username)] = acc.ID
	s.byEmail[strings.ToLower(acc.Email)] = acc.ID

	s.mu.Unlock()

	s.logger.Info().Str("user_id", acc.ID).Str("username", acc.Username).Msg("Account registered")

	s.issueSession(w, acc)
	respondSuccess(w, sessionPayload(acc))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Unsupported request format.")
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(input.Identifier))

	s.mu.RLock()
	userID, ok := s.byUsername[identifier]
	if !ok {
		userID, ok = s.byEmail[identifier]
	}
	var acc *account
	if ok {
		acc = s.accounts[userID]
	}
	s.mu.RUnlock()

	if acc == nil || acc.Password != input.Password {
		respondError(w, http.StatusUnauthorized, "Incorrect username or password.")
		return
	}

	s.logger.Info().Str("user_id", acc.ID).Msg("Login succeeded")

	s.issueSession(w, acc)
	respondSuccess(w, sessionPayload(acc))
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	respondSuccess(w, sessionPayload(acc))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	respondSuccess(w, map[string]string{"status": "logged out"})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	s.mu.RLock()
	chats := make([]model.Chat, 0)
	for _, chatID := range s.chatOrder {
		chat := s.chats[chatID]
		for _, p := range chat.Participants {
			if p.ID == acc.ID {
				chats = append(chats, *chat)
				break
			}
		}
	}
	s.mu.RUnlock()

	respondSuccess(w, chats)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))

	s.mu.RLock()
	matches := make([]model.Participant, 0)
	for _, candidate := range s.accounts {
		if candidate.ID == acc.ID {
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(candidate.Username), query) {
			matches = append(matches, model.Participant{
				ID:       candidate.ID,
				Username: candidate.Username,
			})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Username < matches[j].Username
	})

	respondSuccess(w, matches)
}

// pairKey builds the order-independent index key of a one-to-one chat.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	targetID := chi.URLParam(r, "userID")
	if targetID == acc.ID {
		respondError(w, http.StatusBadRequest, "Cannot start a chat with yourself.")
		return
	}

	s.mu.Lock()

	target, exists := s.accounts[targetID]
	if !exists {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Account not found.")
		return
	}

	if chatID, found := s.pairIndex[pairKey(acc.ID, targetID)]; found {
		chat := *s.chats[chatID]
		s.mu.Unlock()
		respondSuccess(w, chat)
		return
	}

	chat := &model.Chat{
		ID:      uuid.NewString(),
		IsGroup: false,
		Participants: []model.Participant{
			{ID: acc.ID, Username: acc.Username},
			{ID: target.ID, Username: target.Username},
		},
	}
	s.chats[chat.ID] = chat
	s.chatOrder = append([]string{chat.ID}, s.chatOrder...)
	s.pairIndex[pairKey(acc.ID, targetID)] = chat.ID

	created := *chat
	s.mu.Unlock()

	s.logger.Info().Str("chat_id", created.ID).Str("creator", acc.ID).Str("target", target.ID).Msg("Chat created")

	// the creator gets the chat in the HTTP response; the other side
	// learns about it via push
	s.hub.Deliver([]string{target.ID}, "chatCreated", created)

	respondSuccess(w, created)
}

// chatForParticipant fetches the chat when the user is a member of it.
func (s *Server) chatForParticipant(chatID, userID string) (*model.Chat, bool) {
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, false
	}
	for _, p := range chat.Participants {
		if p.ID == userID {
			return chat, true
		}
	}
	return nil, false
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	chatID := chi.URLParam(r, "chatID")

	s.mu.RLock()
	_, member := s.chatForParticipant(chatID, acc.ID)
	if !member {
		s.mu.RUnlock()
		respondError(w, http.StatusNotFound, "Chat not found.")
		return
	}

	history := make([]model.Message, len(s.messages[chatID]))
	copy(history, s.messages[chatID])
	s.mu.RUnlock()

	respondSuccess(w, history)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	chatID := chi.URLParam(r, "chatID")

	var input struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Unsupported request format.")
		return
	}

	if strings.TrimSpace(input.Content) == "" {
		respondError(w, http.StatusBadRequest, "Message cannot be empty.")
		return
	}

	s.mu.Lock()

	chat, member := s.chatForParticipant(chatID, acc.ID)
	if !member {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Chat not found.")
		return
	}

	message := model.Message{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		SenderID:       acc.ID,
		SenderUsername: acc.Username,
		Content:        input.Content,
		CreatedAt:      time.Now().UTC(),
	}

	s.messages[chatID] = append(s.messages[chatID], message)
	chat.LatestMessage = &message

	recipients := make([]string, 0, len(chat.Participants))
	for _, p := range chat.Participants {
		if p.ID != acc.ID {
			recipients = append(recipients, p.ID)
		}
	}

	s.mu.Unlock()

	// every participant gets the push, whether or not they joined the
	// room; room membership only scopes typing relays
	s.hub.Deliver(recipients, "messageReceived", message)

	respondSuccess(w, message)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.sessionUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection to websocket")
		return
	}

	client := newWSClient(s.hub, conn, acc.ID)

	go client.writePump()

	s.logger.Info().Str("user_id", acc.ID).Msg("Websocket connection established")

	select {
	case s.hub.register <- client:
	case <-s.hub.stop:
		_ = conn.Close()
		return
	}

	client.readPump()
}
