package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter throttles enqueue requests per remote IP so one noisy caller
// cannot flood the delivery queue.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientEntry
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows r requests per second per client with the given burst.
func NewClientLimiter(r float64, burst int, cleanupInterval time.Duration) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &ClientLimiter{
		limiters: make(map[string]*clientEntry),
		rate:     rate.Limit(r),
		burst:    burst,
		cleanup:  cleanupInterval,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request from client may proceed.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[client]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[client] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()
	return limiter.Allow()
}

func (l *ClientLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.pruneStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *ClientLimiter) pruneStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := time.Now().Add(-2 * l.cleanup)
	for client, entry := range l.limiters {
		if entry.lastSeen.Before(threshold) {
			delete(l.limiters, client)
		}
	}
}

// Stop ends the cleanup goroutine.
func (l *ClientLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
