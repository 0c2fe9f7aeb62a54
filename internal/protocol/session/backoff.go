package session

import (
	"math"
	"math/rand"
	"time"
)

// BaseBackoffDelay returns the un-jittered delay for attempt N (1-based),
// capped at MaxDelay. It never decreases as attempt grows.
func BaseBackoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
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
	return time.Duration(delay)
}

// NextBackoffDelay returns the retry delay for attempt N (1-based): the base
// delay scaled by a uniform factor in [1-Jitter, 1+Jitter], capped at MaxDelay.
// A nil rng disables randomisation.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	base := float64(BaseBackoffDelay(cfg, attempt))
	jitter := clampJitter(cfg.Jitter)
	if jitter > 0 && rng != nil {
		base *= 1 - jitter + 2*jitter*rng.Float64()
	}
	if cfg.MaxDelay > 0 && base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	return time.Duration(base)
}

func clampJitter(j float64) float64 {
	switch {
	case j <= 0 || math.IsNaN(j):
		return 0
	case j > 1:
		return 1
	}
	return j
}
