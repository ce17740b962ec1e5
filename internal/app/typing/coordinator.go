/*
Package typing coordinates the ephemeral per-chat typing state.

Local side: the first keystroke in a chat emits one typing signal; further
keystrokes only refresh a debounce timer. The timer expiring, switching
away from the chat, or successfully sending a message emits stopTyping and
clears the outstanding flag. Remote side: typing/stopTyping events toggle
a per-chat indicator, with a bounded auto-clear so a dropped stopTyping
cannot leave the indicator stuck.
*/
package typing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatsync/internal/pkg/logx"
)

const (
	// DebounceInterval is the local inactivity window after the last
	// keystroke before stopTyping is emitted.
	DebounceInterval = 3000 * time.Millisecond

	// RemoteClearTimeout bounds how long a remote typing indicator may
	// stay set without a fresh typing event.
	RemoteClearTimeout = 5 * time.Second
)

// Emitter is the outbound surface the coordinator signals through.
type Emitter interface {
	EmitTyping(chatID string) error
	EmitStopTyping(chatID string) error
}

// Coordinator tracks local debounce timers and remote typing state per chat.
type Coordinator struct {
	// mu protects every map below.
	mu sync.Mutex

	emitter Emitter

	debounce    time.Duration
	remoteClear time.Duration

	// local holds the debounce timer of each chat with an outstanding
	// typing signal.
	local map[string]*time.Timer

	// remote tracks which chats currently show a remote typing indicator,
	// with remoteTimers holding their auto-clear timers.
	remote       map[string]bool
	remoteTimers map[string]*time.Timer

	// listeners are notified on remote indicator changes, keyed by token.
	listeners map[string]func(chatID string, isTyping bool)

	logger zerolog.Logger
}

// NewCoordinator constructs a Coordinator with the production timings.
func NewCoordinator(emitter Emitter) *Coordinator {
	return NewCoordinatorWithTimings(emitter, DebounceInterval, RemoteClearTimeout)
}

// NewCoordinatorWithTimings constructs a Coordinator with explicit debounce
// and remote auto-clear durations.
func NewCoordinatorWithTimings(emitter Emitter, debounce, remoteClear time.Duration) *Coordinator {
	return &Coordinator{
		emitter:      emitter,
		debounce:     debounce,
		remoteClear:  remoteClear,
		local:        make(map[string]*time.Timer),
		remote:       make(map[string]bool),
		remoteTimers: make(map[string]*time.Timer),
		listeners:    make(map[string]func(string, bool)),
		logger:       logx.Logger().With().Str("component", "TypingCoordinator").Logger(),
	}
}

// Keystroke records local typing activity in chatID. The first keystroke
// emits a typing signal and starts the debounce timer; subsequent
// keystrokes refresh the timer without emitting again. The timer is reset,
// not stacked.
func (c *Coordinator) Keystroke(chatID string) {
	c.mu.Lock()

	if timer, outstanding := c.local[chatID]; outstanding {
		timer.Reset(c.debounce)
		c.mu.Unlock()
		return
	}

	c.local[chatID] = time.AfterFunc(c.debounce, func() {
		c.expireLocal(chatID)
	})
	c.mu.Unlock()

	if err := c.emitter.EmitTyping(chatID); err != nil {
		c.logger.Debug().Err(err).Str("chat_id", chatID).Msg("Typing signal not delivered")
	}
}

// expireLocal fires when the debounce window elapses with no further
// keystrokes.
func (c *Coordinator) expireLocal(chatID string) {
	c.mu.Lock()
	_, outstanding := c.local[chatID]
	delete(c.local, chatID)
	c.mu.Unlock()

	if !outstanding {
		return
	}

	if err := c.emitter.EmitStopTyping(chatID); err != nil {
		c.logger.Debug().Err(err).Str("chat_id", chatID).Msg("StopTyping signal not delivered")
	}
}

// StopFor emits stopTyping for chatID immediately and cancels its debounce
// timer, regardless of timer state. Called when the consumer switches away
// from a chat or successfully sends a message in it.
func (c *Coordinator) StopFor(chatID string) {
	c.mu.Lock()
	if timer, outstanding := c.local[chatID]; outstanding {
		timer.Stop()
		delete(c.local, chatID)
	}
	c.mu.Unlock()

	if err := c.emitter.EmitStopTyping(chatID); err != nil {
		c.logger.Debug().Err(err).Str("chat_id", chatID).Msg("StopTyping signal not delivered")
	}
}

// HandleTyping marks the remote side of chatID as typing and arms the
// bounded auto-clear.
func (c *Coordinator) HandleTyping(chatID string) {
	c.mu.Lock()

	c.remote[chatID] = true

	if timer, ok := c.remoteTimers[chatID]; ok {
		timer.Reset(c.remoteClear)
	} else {
		c.remoteTimers[chatID] = time.AfterFunc(c.remoteClear, func() {
			c.autoClearRemote(chatID)
		})
	}

	c.mu.Unlock()

	c.notify(chatID, true)
}

// HandleStopTyping clears the remote typing indicator for chatID.
func (c *Coordinator) HandleStopTyping(chatID string) {
	c.clearRemote(chatID, true)
}

// autoClearRemote clears a remote indicator whose stopTyping never arrived.
func (c *Coordinator) autoClearRemote(chatID string) {
	c.logger.Debug().Str("chat_id", chatID).Msg("Remote typing auto-cleared after timeout")
	c.clearRemote(chatID, true)
}

// Reset drops the remote state for chatID without notifying, used when the
// consumer switches into a chat so its indicator starts fresh.
func (c *Coordinator) Reset(chatID string) {
	c.clearRemote(chatID, false)
}

func (c *Coordinator) clearRemote(chatID string, notifyListeners bool) {
	c.mu.Lock()

	wasTyping := c.remote[chatID]
	delete(c.remote, chatID)

	if timer, ok := c.remoteTimers[chatID]; ok {
		timer.Stop()
		delete(c.remoteTimers, chatID)
	}

	c.mu.Unlock()

	if notifyListeners && wasTyping {
		c.notify(chatID, false)
	}
}

// RemoteTyping reports whether the remote side of chatID is typing.
func (c *Coordinator) RemoteTyping(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote[chatID]
}

// OnRemoteChange registers a listener for remote indicator changes. The
// returned function removes the listener.
func (c *Coordinator) OnRemoteChange(fn func(chatID string, isTyping bool)) func() {
	token := uuid.NewString()

	c.mu.Lock()
	c.listeners[token] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, token)
		c.mu.Unlock()
	}
}

// Close stops every pending timer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for chatID, timer := range c.local {
		timer.Stop()
		delete(c.local, chatID)
	}
	for chatID, timer := range c.remoteTimers {
		timer.Stop()
		delete(c.remoteTimers, chatID)
	}
}

// notify invokes listeners outside the lock.
func (c *Coordinator) notify(chatID string, isTyping bool) {
	c.mu.Lock()
	listeners := make([]func(string, bool), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(chatID, isTyping)
	}
}
