/*
Package devserver implements an in-memory stand-in for the chat backend,
used by integration tests and for local development of consumers.

This file defines the websocket hub: one connection per signed-in user,
per-chat rooms joined and left by client request, typing relays scoped to
room membership, and direct deliveries to users for messageReceived and
chatCreated pushes.
*/
package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatsync/internal/pkg/logx"
)

const (
	// timeout duration for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a pong from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a ping.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of an inbound frame.
	maxFrameSize = 4096

	// per-client outbound queue length.
	sendQueueSize = 64
)

// frame is the JSON envelope for socket events in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinRequest asks the hub to add or remove a client from a chat room.
type joinRequest struct {
	client *wsClient
	chatID string
	join   bool
}

// relayRequest fans a typing event out to a chat room, excluding the sender.
type relayRequest struct {
	chatID   string
	senderID string
	event    string
}

// delivery pushes a prebuilt frame to a set of users, online or not.
type delivery struct {
	userIDs []string
	payload []byte
}

// hub coordinates all websocket clients. All state is owned by the run
// goroutine; other goroutines communicate through the channels.
type hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	joins      chan joinRequest
	relays     chan relayRequest
	deliveries chan delivery

	// clients maps user id to the live connection; a reconnect replaces
	// the previous one.
	clients map[string]*wsClient

	// rooms maps chat id to the clients that joined it.
	rooms map[string]map[string]*wsClient

	stop chan struct{}
	wg   sync.WaitGroup

	logger zerolog.Logger
}

func newHub() *hub {
	h := &hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		joins:      make(chan joinRequest, 16),
		relays:     make(chan relayRequest, 64),
		deliveries: make(chan delivery, 64),
		clients:    make(map[string]*wsClient),
		rooms:      make(map[string]map[string]*wsClient),
		stop:       make(chan struct{}),
		logger:     logx.Logger().With().Str("component", "DevHub").Logger(),
	}

	h.wg.Add(1)
	go h.run()

	return h
}

// run is the hub's event loop.
func (h *hub) run() {
	defer h.wg.Done()

	for {
		select {
		case client := <-h.register:
			if existing, ok := h.clients[client.userID]; ok {
				h.logger.Warn().Str("user_id", client.userID).Msg("User reconnected; replacing previous connection")
				existing.closeSend()
			}
			h.clients[client.userID] = client
			h.logger.Info().Str("user_id", client.userID).Msg("Socket client registered")

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				for _, room := range h.rooms {
					delete(room, client.userID)
				}
				client.closeSend()
				h.logger.Info().Str("user_id", client.userID).Msg("Socket client unregistered")
			}

		case req := <-h.joins:
			if req.join {
				room, ok := h.rooms[req.chatID]
				if !ok {
					room = make(map[string]*wsClient)
					h.rooms[req.chatID] = room
				}
				room[req.client.userID] = req.client
				h.logger.Debug().Str("user_id", req.client.userID).Str("chat_id", req.chatID).Msg("Joined room")
			} else {
				if room, ok := h.rooms[req.chatID]; ok {
					delete(room, req.client.userID)
					if len(room) == 0 {
						delete(h.rooms, req.chatID)
					}
				}
				h.logger.Debug().Str("user_id", req.client.userID).Str("chat_id", req.chatID).Msg("Left room")
			}

		case req := <-h.relays:
			payload, err := marshalFrame(req.event, req.chatID)
			if err != nil {
				h.logger.Error().Err(err).Str("event", req.event).Msg("Failed to build relay frame")
				continue
			}
			for userID, client := range h.rooms[req.chatID] {
				if userID != req.senderID {
					client.enqueue(payload)
				}
			}

		case d := <-h.deliveries:
			for _, userID := range d.userIDs {
				if client, ok := h.clients[userID]; ok {
					client.enqueue(d.payload)
				}
			}

		case <-h.stop:
			for _, client := range h.clients {
				client.closeSend()
			}
			h.clients = nil
			h.rooms = nil
			return
		}
	}
}

// Deliver pushes event/data to the given users if they are online.
func (h *hub) Deliver(userIDs []string, event string, data any) {
	payload, err := marshalFrame(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to build delivery frame")
		return
	}

	select {
	case h.deliveries <- delivery{userIDs: userIDs, payload: payload}:
	case <-h.stop:
	}
}

// Shutdown stops the hub loop and waits for it to exit.
func (h *hub) Shutdown() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	h.wg.Wait()
}

func marshalFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Data: raw})
}

// wsClient represents one live websocket connection and its user.
type wsClient struct {
	hub    *hub
	conn   *websocket.Conn
	userID string

	// send queues outbound frames for the write pump.
	send chan []byte

	// closeOnce guards the send channel against double close.
	closeOnce sync.Once

	logger zerolog.Logger
}

func newWSClient(h *hub, conn *websocket.Conn, userID string) *wsClient {
	return &wsClient{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().Str("component", "DevHub").Str("user_id", userID).Logger(),
	}
}

// enqueue queues a frame, dropping it if the client cannot keep up.
func (c *wsClient) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.logger.Warn().Msg("Client send queue full; dropping frame")
	}
}

func (c *wsClient) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump handles inbound frames until the connection closes, then
// unregisters the client.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Socket read ended")
			}
			return
		}

		c.handleFrame(payload)
	}
}

// handleFrame processes one inbound frame from the client.
func (c *wsClient) handleFrame(payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
		return
	}

	var chatID string
	if err := json.Unmarshal(f.Data, &chatID); err != nil || chatID == "" {
		c.logger.Warn().Str("event", f.Event).Msg("Client frame missing chat id")
		return
	}

	switch f.Event {
	case "joinChat":
		c.hub.joins <- joinRequest{client: c, chatID: chatID, join: true}

	case "leaveChat":
		c.hub.joins <- joinRequest{client: c, chatID: chatID, join: false}

	case "typing", "stopTyping":
		c.hub.relays <- relayRequest{chatID: chatID, senderID: c.userID, event: f.Event}

	default:
		c.logger.Warn().Str("event", f.Event).Msg("Client sent unsupported event")
	}
}

// writePump writes queued frames and periodic pings to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Msg("Frame write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
