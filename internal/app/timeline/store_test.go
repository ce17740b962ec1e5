package timeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
)

type fakeAPI struct {
	mu sync.Mutex

	history map[string][]model.Message

	// onMessages runs inside Messages, letting tests switch the tracked
	// chat while a fetch is in flight.
	onMessages func(chatID string)

	sendErr   error
	sendCalls int
}

func (f *fakeAPI) Messages(ctx context.Context, chatID string) ([]model.Message, error) {
	if f.onMessages != nil {
		f.onMessages(chatID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[chatID], nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	return &model.Message{
		ID:        fmt.Sprintf("srv-%d", f.sendCalls),
		ChatID:    chatID,
		SenderID:  "self",
		Content:   content,
		CreatedAt: time.Unix(int64(1000+f.sendCalls), 0),
	}, nil
}

func msg(id, chatID string, ts int64) model.Message {
	return model.Message{
		ID:        id,
		ChatID:    chatID,
		Content:   "content-" + id,
		CreatedAt: time.Unix(ts, 0),
	}
}

func TestAppendDedupesById(t *testing.T) {
	store := NewStore(&fakeAPI{})

	// same id from history fetch, server push and local echo
	store.Append(msg("m1", "c1", 100))
	store.Append(msg("m1", "c1", 100))
	store.Append(msg("m1", "c1", 100))

	if got := store.Messages("c1"); len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
}

func TestAppendKeepsTimelineOrdered(t *testing.T) {
	store := NewStore(&fakeAPI{})

	store.Append(msg("m3", "c1", 300))
	store.Append(msg("m1", "c1", 100))
	store.Append(msg("m2", "c1", 200))
	// tie on createdAt resolved by id
	store.Append(msg("m2b", "c1", 200))

	got := store.Messages("c1")
	wantOrder := []string{"m1", "m2", "m2b", "m3"}

	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d messages, got %d", len(wantOrder), len(got))
	}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("position %d: got %s want %s (full order %v)", i, got[i].ID, want, got)
		}
	}
}

func TestAppendIsolatesChats(t *testing.T) {
	store := NewStore(&fakeAPI{})

	store.Append(msg("m1", "c1", 100))
	store.Append(msg("m2", "c2", 50))

	if got := store.Messages("c1"); len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("c1 timeline polluted: %v", got)
	}
	if got := store.Messages("c2"); len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("c2 timeline polluted: %v", got)
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	api := &fakeAPI{
		history: map[string][]model.Message{
			"a": {msg("a1", "a", 100)},
			"b": {msg("b1", "b", 100)},
		},
	}
	store := NewStore(api)

	// the user switches to chat b while chat a's fetch is in flight
	api.onMessages = func(chatID string) {
		if chatID == "a" {
			store.Track("b")
		}
	}

	store.Track("a")
	if err := store.LoadFor(context.Background(), "a"); err != nil {
		t.Fatalf("LoadFor err: %v", err)
	}

	if got := store.Messages("a"); len(got) != 0 {
		t.Fatalf("stale result was committed to chat a: %v", got)
	}
	if got := store.Messages("b"); len(got) != 0 {
		t.Fatalf("stale result leaked into chat b: %v", got)
	}

	// the fetch for the now-active chat commits normally
	api.onMessages = nil
	if err := store.LoadFor(context.Background(), "b"); err != nil {
		t.Fatalf("LoadFor err: %v", err)
	}
	if got := store.Messages("b"); len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("unexpected chat b timeline: %v", got)
	}
}

func TestLoadForNormalizesHistory(t *testing.T) {
	api := &fakeAPI{
		history: map[string][]model.Message{
			"c1": {
				msg("m2", "c1", 200),
				msg("m1", "c1", 100),
				msg("m2", "c1", 200), // duplicate in the fetched payload
			},
		},
	}
	store := NewStore(api)
	store.Track("c1")

	if err := store.LoadFor(context.Background(), "c1"); err != nil {
		t.Fatalf("LoadFor err: %v", err)
	}

	got := store.Messages("c1")
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("history not deduplicated/ordered: %v", got)
	}
}

func TestSendMessageRejectsEmptyContentLocally(t *testing.T) {
	api := &fakeAPI{}
	store := NewStore(api)

	for _, content := range []string{"", "   ", "\n\t "} {
		if _, err := store.SendMessage(context.Background(), "c1", content); err == nil {
			t.Fatalf("content %q should be rejected", content)
		} else if !errs.IsValidation(err) {
			t.Fatalf("expected validation failure, got %v", err)
		}
	}

	if api.sendCalls != 0 {
		t.Fatalf("no network call may be issued for empty content, got %d", api.sendCalls)
	}
}

func TestSendMessageAppendsCanonicalEcho(t *testing.T) {
	store := NewStore(&fakeAPI{})

	sent, err := store.SendMessage(context.Background(), "c1", "  hello  ")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if sent.ID != "srv-1" {
		t.Fatalf("expected the server-assigned id, got %q", sent.ID)
	}
	if sent.Content != "hello" {
		t.Fatalf("expected trimmed content, got %q", sent.Content)
	}

	got := store.Messages("c1")
	if len(got) != 1 || got[0].ID != "srv-1" {
		t.Fatalf("canonical message not appended: %v", got)
	}
}

func TestSendMessageFailureSurfacesError(t *testing.T) {
	api := &fakeAPI{sendErr: errs.New(errs.ErrNetwork)}
	store := NewStore(api)

	if _, err := store.SendMessage(context.Background(), "c1", "hi"); !errs.IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if got := store.Messages("c1"); len(got) != 0 {
		t.Fatalf("nothing may be appended on failure: %v", got)
	}
}

func TestAppendNotifiesWithChatID(t *testing.T) {
	store := NewStore(&fakeAPI{})

	var notified []string
	unsub := store.OnChange(func(chatID string) {
		notified = append(notified, chatID)
	})

	store.Append(msg("m1", "c1", 100))
	store.Append(msg("m1", "c1", 100)) // duplicate: no notification

	if len(notified) != 1 || notified[0] != "c1" {
		t.Fatalf("unexpected notifications: %v", notified)
	}

	unsub()
	store.Append(msg("m2", "c1", 200))
	if len(notified) != 1 {
		t.Fatal("unsubscribed listener was notified")
	}
}
