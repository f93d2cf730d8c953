// Package ratelimit throttles callers of the mock notes service, one token
// bucket per client address.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the per-client limits.
type Config struct {
	RPS             float64       // sustained requests per second per client
	Burst           int           // bucket size per client
	CleanupInterval time.Duration // idle limiters older than this are dropped
}

// DefaultConfig allows a browsing client to page quickly while still letting
// tests provoke 429 responses with a tight config.
var DefaultConfig = Config{
	RPS:             50,
	Burst:           100,
	CleanupInterval: 10 * time.Minute,
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter keeps one limiter per client key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	config   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
func NewRateLimiter(config Config) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}
	rl.wg.Add(1)
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether one more request from client fits its budget.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.GetLimiter(client).Allow()
}

// GetLimiter returns the limiter for client, creating it on first use.
func (rl *RateLimiter) GetLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)}
		rl.limiters[client] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// Cleanup drops limiters idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.CleanupInterval)
	for client, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, client)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	rl.wg.Wait()
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
