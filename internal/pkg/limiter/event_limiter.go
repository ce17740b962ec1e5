/*
Package limiter provides rate limiting for outbound socket events.

It utilizes the Token Bucket algorithm (rate.Limiter) to cap the frequency
of ephemeral events (typing signals) emitted per chat, and includes a
cleanup goroutine that periodically removes idle limiters to keep the map
from growing with every chat ever touched.
*/
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EventLimiter implements a per-chat rate limiter for outbound events.
type EventLimiter struct {
	// mu protects concurrent access to the limits map.
	mu sync.RWMutex

	// limits maps a chat id to its *rate.Limiter instance.
	limits map[string]*rate.Limiter

	// r defines the number of events allowed per second.
	r rate.Limit

	// b is the burst size of each token bucket.
	b int

	// stop terminates the cleanup goroutine.
	stop chan struct{}
}

// NewEventLimiter creates an EventLimiter with rate r and burst b and
// starts a background goroutine that removes idle per-chat limiters.
func NewEventLimiter(r rate.Limit, b int) *EventLimiter {
	l := &EventLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go l.cleanUpIdle()

	return l
}

// Allow reports whether an event for chatID may be emitted now, consuming
// a token if so.
func (l *EventLimiter) Allow(chatID string) bool {
	return l.getLimiter(chatID).Allow()
}

// getLimiter retrieves the limiter for chatID, creating it on first use.
// Double-checked locking keeps creation concurrent-safe without holding
// the write lock on the hot path.
func (l *EventLimiter) getLimiter(chatID string) *rate.Limiter {
	l.mu.RLock()
	lim, exists := l.limits[chatID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		lim, exists = l.limits[chatID]
		if !exists {
			lim = rate.NewLimiter(l.r, l.b)
			l.limits[chatID] = lim
		}
		l.mu.Unlock()
	}

	return lim
}

// Close stops the cleanup goroutine.
func (l *EventLimiter) Close() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// cleanUpIdle periodically removes limiters whose token bucket has
// refilled completely, meaning the chat has been quiet long enough that
// recreating the limiter on demand loses nothing.
func (l *EventLimiter) cleanUpIdle() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for chatID, lim := range l.limits {
				if lim.Tokens() >= float64(l.b) {
					delete(l.limits, chatID)
				}
			}
			l.mu.Unlock()

		case <-l.stop:
			return
		}
	}
}
