// Package server implements a token bucket rate limiter for per-connection
// frame throttling.
package server

import (
	"time"
)

// frameLimiter is a token bucket owned by one connection's read loop, so it
// needs no locking.
type frameLimiter struct {
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
	now       func() time.Time
}

// newFrameLimiter returns nil when cfg.Burst is zero; a nil limiter allows
// every frame.
func newFrameLimiter(cfg RateLimitConfig) *frameLimiter {
	if cfg.Burst <= 0 {
		return nil
	}

	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	capacity := float64(cfg.Burst)
	rate := capacity / interval.Seconds()
	if rate <= 0 {
		rate = capacity
	}

	return &frameLimiter{
		tokens:    capacity,
		capacity:  capacity,
		rate:      rate,
		lastCheck: time.Now(),
		now:       time.Now,
	}
}

func (l *frameLimiter) allow() bool {
	if l == nil {
		return true
	}

	now := l.now()
	elapsed := now.Sub(l.lastCheck).Seconds()
	l.lastCheck = now

	if elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
	}

	if l.tokens < 1 {
		return false
	}

	l.tokens--
	return true
}
