package provider

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker("test", 3, time.Minute)

	b.failure()
	b.failure()
	if b.current() != breakerClosed {
		t.Error("Should still be CLOSED after 2 failures")
	}

	b.failure()
	if b.current() != breakerOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", b.current())
	}
	if b.allow() {
		t.Error("Expected allow() to return false in OPEN state")
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newBreaker("test", 1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.failure()
	if b.allow() {
		t.Fatal("expected OPEN right after failure")
	}

	now = now.Add(31 * time.Second)
	if !b.allow() {
		t.Fatal("expected a probe after cooldown")
	}
	if b.current() != breakerHalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", b.current())
	}

	// A failed probe re-opens immediately.
	b.failure()
	if b.current() != breakerOpen {
		t.Errorf("Expected OPEN after failed probe, got %s", b.current())
	}
}

func TestBreaker_ClosesOnSuccess(t *testing.T) {
	b := newBreaker("test", 1, 0)
	b.failure()
	b.allow()

	b.success()
	if b.current() != breakerClosed {
		t.Errorf("Expected CLOSED after success, got %s", b.current())
	}
	if !b.allow() {
		t.Error("Expected allow() after recovery")
	}
}
