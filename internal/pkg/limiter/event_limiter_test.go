package limiter

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := NewEventLimiter(rate.Limit(0.001), 2)
	defer l.Close()

	if !l.Allow("c1") {
		t.Fatal("first event should be allowed")
	}
	if !l.Allow("c1") {
		t.Fatal("second event should fit in the burst")
	}
	if l.Allow("c1") {
		t.Fatal("third event should be throttled")
	}
}

func TestChatsAreIndependent(t *testing.T) {
	l := NewEventLimiter(rate.Limit(0.001), 1)
	defer l.Close()

	if !l.Allow("c1") {
		t.Fatal("first event for c1 should be allowed")
	}
	if !l.Allow("c2") {
		t.Fatal("c2 should have its own budget")
	}
	if l.Allow("c1") {
		t.Fatal("c1 budget should be exhausted")
	}
}
