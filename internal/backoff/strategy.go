package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff calculation algorithms.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number and parameters.
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitterStrategy implements exponential backoff with uniform
// additive jitter. Used by the retry interceptor.
type ExponentialJitterStrategy struct{}

// Calculate implements the Strategy interface for exponential backoff with jitter.
func (s ExponentialJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	backoff := time.Duration(float64(initialBackoff) * pow(multiplier, attempt))
	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		jitterAmount := time.Duration(float64(backoff) * jitter * rand.Float64())
		if backoff+jitterAmount > maxBackoff {
			backoff = maxBackoff
		} else {
			backoff += jitterAmount
		}
	}
	return backoff
}

// LinearJitterStrategy grows the delay linearly with the attempt number,
// with the same additive jitter treatment as the exponential strategy.
type LinearJitterStrategy struct{}

// Calculate implements the Strategy interface for linear backoff with jitter.
func (s LinearJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := time.Duration(float64(initialBackoff) * float64(attempt+1))
	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		jitterAmount := time.Duration(float64(backoff) * jitter * rand.Float64())
		if backoff+jitterAmount > maxBackoff {
			backoff = maxBackoff
		} else {
			backoff += jitterAmount
		}
	}
	return backoff
}

// Reconnect returns the delay before reconnect attempt n (1-based):
// base * 2^(n-1) * uniform(0.5, 1.0). The multiplicative jitter halves
// the delay at most, so the result always lies in
// [base*2^(n-1)*0.5, base*2^(n-1)].
func Reconnect(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	raw := float64(base) * pow(2.0, attempt-1)
	factor := 0.5 + rand.Float64()*0.5
	return time.Duration(raw * factor)
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

// Pow is a public version of pow for callers outside the package.
func Pow(base float64, exponent int) float64 {
	return pow(base, exponent)
}
