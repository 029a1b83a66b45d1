package api

import (
	"testing"
	"time"
)

func TestClientLimiterAllow(t *testing.T) {
	limiter := NewClientLimiter(5, 2, time.Minute)
	defer limiter.Stop()

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("burst requests should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("third request should be limited")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("other clients have their own budget")
	}

	time.Sleep(250 * time.Millisecond)
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("request after refill should be allowed")
	}
}

func TestClientLimiterPrune(t *testing.T) {
	limiter := NewClientLimiter(5, 1, time.Minute)
	defer limiter.Stop()

	limiter.Allow("10.0.0.1")
	limiter.mu.Lock()
	limiter.limiters["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	limiter.mu.Unlock()

	limiter.pruneStale()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.limiters) != 0 {
		t.Fatalf("expected stale client pruned, have %d", len(limiter.limiters))
	}
}

func TestClientLimiterStopIdempotent(t *testing.T) {
	limiter := NewClientLimiter(1, 1, time.Minute)
	limiter.Stop()
	limiter.Stop()
}
