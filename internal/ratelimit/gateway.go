// Package ratelimit enforces the single process-wide ceiling on calls to
// the upstream job source. All fetches, regardless of user, go through one
// Gateway; per-user fairness is handled by scheduling stagger instead.
package ratelimit

import (
	"sync"
	"time"
)

const window = time.Minute

// Gateway is a sliding-window limiter. Safe for concurrent use.
type Gateway struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	history []time.Time // timestamps of granted requests, oldest first
}

// NewGateway returns a Gateway allowing at most perMinute requests in any
// sliding 60-second window.
func NewGateway(perMinute int) *Gateway {
	return &Gateway{limit: perMinute, now: time.Now}
}

// NewGatewayWithClock is NewGateway with an injected clock, for tests.
func NewGatewayWithClock(perMinute int, now func() time.Time) *Gateway {
	return &Gateway{limit: perMinute, now: now}
}

// Acquire records a request and returns true if it is within the ceiling.
// Callers receiving false must skip the attempt and retry on a later pass;
// Acquire never blocks.
func (g *Gateway) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if len(g.history) >= g.limit {
		return false
	}
	g.history = append(g.history, now)
	return true
}

// InFlight reports how many granted requests sit in the current window.
// Exposed for the status endpoint.
func (g *Gateway) InFlight() (used, limit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.history), g.limit
}

// prune drops timestamps older than the window. Caller holds g.mu.
func (g *Gateway) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(g.history) && !g.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.history = append(g.history[:0], g.history[i:]...)
	}
}
