package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
)

// wsServer accepts websocket connections and funnels every inbound frame
// into a single channel. It tolerates redials by keeping the newest
// connection as the push target.
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	frames chan Frame

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()

	s := &wsServer{frames: make(chan Frame, 32)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.frames <- frame
		}
	}))
	t.Cleanup(s.close)

	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// push sends a frame to the most recent connection.
func (s *wsServer) push(t *testing.T, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal push payload: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no connection to push to")
	}
	conn := s.conns[len(s.conns)-1]
	if err := conn.WriteJSON(Frame{Event: event, Data: raw}); err != nil {
		t.Fatalf("push frame: %v", err)
	}
}

// dropLatest closes the newest connection to simulate a transport drop.
func (s *wsServer) dropLatest(t *testing.T) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no connection to drop")
	}
	_ = s.conns[len(s.conns)-1].Close()
}

func (s *wsServer) close() {
	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.srv.Close()
}

func newTestManager(url string) *Manager {
	m := NewManager(url, nil)
	m.retryMin = 10 * time.Millisecond
	m.retryMax = 50 * time.Millisecond
	return m
}

func waitFrame(t *testing.T, s *wsServer) Frame {
	t.Helper()

	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %v (at %v)", want, m.State())
}

func chatIDOf(t *testing.T, frame Frame) string {
	t.Helper()

	var chatID string
	if err := json.Unmarshal(frame.Data, &chatID); err != nil {
		t.Fatalf("frame %q carries no chat id: %v", frame.Event, err)
	}
	return chatID
}

func TestStartRejoinsActiveChat(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Close()

	// chat selected before the socket exists; the join happens on connect
	m.SelectChat("c1")
	m.Start()
	waitState(t, m, Connected)

	frame := waitFrame(t, srv)
	if frame.Event != EventJoinChat || chatIDOf(t, frame) != "c1" {
		t.Fatalf("expected joinChat c1, got %q %s", frame.Event, frame.Data)
	}
}

func TestSelectChatLeavesPreviousRoom(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Close()

	m.Start()
	waitState(t, m, Connected)

	m.SelectChat("c1")
	if frame := waitFrame(t, srv); frame.Event != EventJoinChat || chatIDOf(t, frame) != "c1" {
		t.Fatalf("expected joinChat c1, got %q %s", frame.Event, frame.Data)
	}

	m.SelectChat("c2")
	if frame := waitFrame(t, srv); frame.Event != EventLeaveChat || chatIDOf(t, frame) != "c1" {
		t.Fatalf("expected leaveChat c1, got %q %s", frame.Event, frame.Data)
	}
	if frame := waitFrame(t, srv); frame.Event != EventJoinChat || chatIDOf(t, frame) != "c2" {
		t.Fatalf("expected joinChat c2, got %q %s", frame.Event, frame.Data)
	}
}

func TestInboundMessageDispatch(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Close()

	received := make(chan model.Message, 4)
	unsub := m.OnMessage(func(msg model.Message) { received <- msg })

	m.Start()
	waitState(t, m, Connected)

	srv.push(t, EventMessageReceived, model.Message{ID: "m1", ChatID: "c1", Content: "hi"})

	select {
	case msg := <-received:
		if msg.ID != "m1" || msg.Content != "hi" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never dispatched")
	}

	unsub()
	srv.push(t, EventMessageReceived, model.Message{ID: "m2", ChatID: "c1"})

	select {
	case msg := <-received:
		t.Fatalf("unsubscribed handler received %+v", msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestInboundTypingDispatch(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Close()

	typing := make(chan string, 4)
	stops := make(chan string, 4)
	m.OnTyping(func(chatID string) { typing <- chatID })
	m.OnStopTyping(func(chatID string) { stops <- chatID })

	m.Start()
	waitState(t, m, Connected)

	srv.push(t, EventTyping, "c1")
	srv.push(t, EventStopTyping, "c1")

	select {
	case chatID := <-typing:
		if chatID != "c1" {
			t.Fatalf("typing for wrong chat: %q", chatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("typing never dispatched")
	}

	select {
	case chatID := <-stops:
		if chatID != "c1" {
			t.Fatalf("stopTyping for wrong chat: %q", chatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stopTyping never dispatched")
	}
}

func TestStopSilencesEmits(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Close()

	m.Start()
	waitState(t, m, Connected)

	m.Stop()

	if got := m.State(); got != Disconnected {
		t.Fatalf("expected disconnected, got %v", got)
	}
	if m.ActiveChat() != "" {
		t.Fatal("active chat should be forgotten on stop")
	}
	if err := m.EmitStopTyping("c1"); !errs.IsNetworkFailure(err) {
		t.Fatalf("emit on a dead socket should fail, got %v", err)
	}
}

func TestRedialRejoinsActiveChat(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Close()

	m.Start()
	waitState(t, m, Connected)

	m.SelectChat("c1")
	if frame := waitFrame(t, srv); frame.Event != EventJoinChat || chatIDOf(t, frame) != "c1" {
		t.Fatalf("expected joinChat c1, got %q %s", frame.Event, frame.Data)
	}

	srv.dropLatest(t)

	// the redial loop reconnects and restores room membership on its own
	frame := waitFrame(t, srv)
	if frame.Event != EventJoinChat || chatIDOf(t, frame) != "c1" {
		t.Fatalf("expected joinChat c1 after redial, got %q %s", frame.Event, frame.Data)
	}
	waitState(t, m, Connected)
}
