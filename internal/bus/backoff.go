package bus

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines the delay between adapter reopen attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

// Delay returns the wait before reopen attempt N (1-based). Jitter scales the
// delay into [0.5, 1.5); a nil rng uses the lower bound.
func (c BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	delay := float64(c.InitialDelay)
	if attempt > 1 {
		mult := math.Max(c.Multiplier, 1.0)
		delay *= math.Pow(mult, float64(attempt-1))
	}
	if c.MaxDelay > 0 {
		delay = math.Min(delay, float64(c.MaxDelay))
	}
	if c.Jitter && attempt > 1 {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Backoff counts consecutive failures for one adapter.
type Backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewBackoff(cfg BackoffConfig, rng *rand.Rand) *Backoff {
	return &Backoff{cfg: cfg, rng: rng}
}

// Next records a failure and returns how long to wait before retrying.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return b.cfg.Delay(b.attempt, b.rng)
}

// Attempts is the number of failures since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
}
