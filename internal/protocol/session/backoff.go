package session

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff yields reconnect delays. NextDelay grows with consecutive failures
// and Reset returns the policy to its minimum delay.
type Backoff interface {
	NextDelay() time.Duration
	Reset()
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return jitter(cfg, float64(cfg.InitialDelay), rng)
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return jitter(cfg, delay, rng)
}

func jitter(cfg BackoffConfig, delay float64, rng *rand.Rand) time.Duration {
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// ExponentialBackoff counts consecutive failures and maps them through
// NextBackoffDelay.
type ExponentialBackoff struct {
	mu      sync.Mutex
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewExponentialBackoff(cfg BackoffConfig, rng *rand.Rand) *ExponentialBackoff {
	return &ExponentialBackoff{cfg: cfg, rng: rng}
}

func (b *ExponentialBackoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt++
	return NextBackoffDelay(b.cfg, b.attempt, b.rng)
}

func (b *ExponentialBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempts reports failures since the last Reset.
func (b *ExponentialBackoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
