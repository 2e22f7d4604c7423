package provider

import (
	"log/slog"
	"sync"
	"time"
)

// breakerState is the health of one endpoint.
type breakerState int

const (
	breakerClosed   breakerState = iota // healthy, dial normally
	breakerOpen                         // failing, skip until cooldown passes
	breakerHalfOpen                     // cooldown passed, one probe allowed
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "CLOSED"
	case breakerOpen:
		return "OPEN"
	case breakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// breaker stops the provider from re-dialing an endpoint that keeps failing,
// so fallback to the next endpoint is immediate.
type breaker struct {
	endpoint string
	mu       sync.Mutex

	state       breakerState
	failures    int
	lastFailure time.Time

	threshold int           // consecutive failures before opening
	cooldown  time.Duration // time before a half-open probe
	now       func() time.Time
}

func newBreaker(endpoint string, threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &breaker{
		endpoint:  endpoint,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// allow reports whether the endpoint may be dialed now.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
		slog.Info("Endpoint breaker HALF_OPEN", slog.String("endpoint", b.endpoint))
		return true
	default:
		return true
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != breakerClosed {
		slog.Info("Endpoint breaker CLOSED (recovered)", slog.String("endpoint", b.endpoint))
	}
	b.state = breakerClosed
	b.failures = 0
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	b.failures++

	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		slog.Warn("Endpoint breaker OPEN (probe failed)", slog.String("endpoint", b.endpoint))
	case breakerClosed:
		if b.failures >= b.threshold {
			b.state = breakerOpen
			slog.Warn("Endpoint breaker OPEN (failures exceeded threshold)",
				slog.String("endpoint", b.endpoint),
				slog.Int("failures", b.failures))
		}
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
