package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiterBurst(t *testing.T) {
	limiter := NewLimiter("nse", 60)

	if limiter.Name() != "nse" {
		t.Errorf("Expected name 'nse', got '%s'", limiter.Name())
	}
	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Errorf("Request %d should have been allowed", i)
		}
	}
}

func TestLimiterWait(t *testing.T) {
	limiter := NewLimiter("yahoo", 120)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait took too long")
	}
}

func TestLimiterBackoff(t *testing.T) {
	limiter := NewLimiter("yahoo", 60)
	initial := limiter.Backoff()

	limiter.SignalRateLimited()
	after1 := limiter.Backoff()
	if after1 <= initial {
		t.Error("Backoff should increase after rate limit signal")
	}
	if limiter.Allow() {
		t.Error("Requests should be held while the penalty is active")
	}

	limiter.SignalRateLimited()
	after2 := limiter.Backoff()
	if after2 <= after1 {
		t.Error("Backoff should continue to increase")
	}

	limiter.ResetBackoff()
	if limiter.Backoff() != initial {
		t.Errorf("Expected backoff reset to %v, got %v", initial, limiter.Backoff())
	}
	if !limiter.Allow() {
		t.Error("Requests should flow again after reset")
	}
}

func TestSetSharesLimiter(t *testing.T) {
	s := NewSet()

	a := s.Get("nse", 60)
	b := s.Get("nse", 10)
	if a != b {
		t.Error("Expected the same limiter for the same name")
	}
	if s.Get("yahoo", 30) == a {
		t.Error("Expected a distinct limiter per name")
	}
}

func TestLimiterContextCancellation(t *testing.T) {
	limiter := NewLimiter("slow", 1)
	for i := 0; i < 5; i++ {
		limiter.Allow()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
