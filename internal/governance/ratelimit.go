package governance

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiterConfig defines outbound request pacing. A zero
// RequestsPerSecond disables limiting.
type RateLimiterConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

// RateLimiter is a token bucket shared by every outbound request.
// A nil *RateLimiter allows everything.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64   // tokens per second
	capacity   float64   // maximum burst size
	tokens     float64   // current available tokens
	lastRefill time.Time // last time tokens were refilled
	now        func() time.Time
}

// NewRateLimiter returns a limiter for cfg, or nil when limiting is disabled.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerSecond // Default burst = rate
	}
	rl := &RateLimiter{
		rate:     float64(cfg.RequestsPerSecond),
		capacity: float64(burst),
		tokens:   float64(burst), // Start with full bucket
		now:      time.Now,
	}
	rl.lastRefill = rl.now()
	return rl
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	_, ok := rl.reserve()
	return ok
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	for {
		delay, ok := rl.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats returns current bucket state.
func (rl *RateLimiter) Stats() RateLimitStats {
	if rl == nil {
		return RateLimitStats{}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	return RateLimitStats{
		Limit:          int(rl.rate),
		BurstSize:      int(rl.capacity),
		Available:      rl.tokens,
		LastRefillTime: rl.lastRefill.Format(time.RFC3339),
	}
}

// RateLimitStats exposes current state of the bucket.
type RateLimitStats struct {
	Limit          int     `json:"limit"`
	BurstSize      int     `json:"burstSize"`
	Available      float64 `json:"available"`
	LastRefillTime string  `json:"lastRefillTime"`
}

// reserve takes a token, or reports how long until the next one accrues.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return 0, true
	}

	missing := 1.0 - rl.tokens
	wait := time.Duration(math.Ceil(missing / rl.rate * float64(time.Second)))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// refill adds tokens based on elapsed time.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.rate

	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}

	rl.lastRefill = now
}
