package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 2 * time.Minute
)

// Limiter paces requests to one remote host.
// Beyond the token bucket it tracks a penalty that grows each time the host answers 429.
type Limiter struct {
	name    string
	limiter *rate.Limiter

	mu      sync.Mutex
	backoff time.Duration
	penalty time.Time
}

// NewLimiter creates a limiter allowing perMinute requests per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		backoff: minBackoff,
	}
}

// Wait blocks until a pending penalty has elapsed and a token is available
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	until := l.penalty
	l.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may be sent right now without waiting
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	blocked := time.Now().Before(l.penalty)
	l.mu.Unlock()
	if blocked {
		return false
	}
	return l.limiter.Allow()
}

// SignalRateLimited doubles the backoff and holds further requests for that long
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoff *= 2
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
	l.penalty = time.Now().Add(l.backoff)
}

// ResetBackoff is called after a successful response
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = minBackoff
	l.penalty = time.Time{}
}

// Backoff returns the current penalty step
func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Name returns the host label
func (l *Limiter) Name() string {
	return l.name
}

// Set shares limiters between clients that talk to the same host
type Set struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewSet creates an empty limiter set
func NewSet() *Set {
	return &Set{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter registered under name, creating it with perMinute on first use
func (s *Set) Get(name string, perMinute int) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[name]; ok {
		return l
	}
	l := NewLimiter(name, perMinute)
	s.limiters[name] = l
	return l
}
