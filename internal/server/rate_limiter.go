package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket: burst frames up front, refilled evenly over
// interval.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	perSec   float64
	lastFill time.Time
	now      func() time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:   float64(burst),
		burst:    float64(burst),
		perSec:   float64(burst) / interval.Seconds(),
		lastFill: time.Now(),
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.lastFill).Seconds(); elapsed > 0 {
		rl.tokens += elapsed * rl.perSec
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
	}
	rl.lastFill = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
