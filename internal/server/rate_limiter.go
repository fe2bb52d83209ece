// Package server throttles inbound frames per connection so one noisy game
// server cannot flood the chat side.
package server

import (
	"math"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/mcbridge/internal/config"
)

type rateLimiter struct {
	limiter *rate.Limiter
	cfg     config.RateLimitConfig
}

// newRateLimiter returns nil when throttling is disabled; a nil limiter
// allows every frame.
func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(math.Ceil(cfg.PerSecond)))
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
		cfg:     cfg,
	}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
