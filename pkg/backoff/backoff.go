// Package backoff computes retry delays.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy calculates the wait before a retry.
// Implementations should be safe for concurrent use.
type Strategy interface {
	// Delay returns the wait before retry number attempt. Attempt starts at 0.
	Delay(attempt int) time.Duration
}

// Exponential implements capped exponential backoff with optional jitter.
// Zero values fall back to a 1s base, 30s cap and a multiplier of 2.
type Exponential struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction in [0,1); zero keeps delays deterministic
}

// Default returns the reconnect schedule used by the realtime client:
// 1s, 2s, 4s, 8s, 16s, then 30s.
func Default() Exponential {
	return Exponential{Base: time.Second, Max: 30 * time.Second, Multiplier: 2}
}

// Delay returns min(Base * Multiplier^attempt * (1 ± Jitter), Max).
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}

	base := e.Base
	if base <= 0 {
		base = time.Second
	}
	maxDelay := e.Max
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	multiplier := e.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	interval := float64(base) * math.Pow(multiplier, float64(attempt))
	if e.Jitter > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.Jitter
	}

	// Also catches +Inf for very large attempts
	if interval > float64(maxDelay) || math.IsNaN(interval) {
		return maxDelay
	}
	return time.Duration(interval)
}

// Constant waits the same interval before every retry.
type Constant time.Duration

// Delay implements Strategy.
func (c Constant) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	return time.Duration(c)
}
