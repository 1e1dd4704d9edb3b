package backoff

import (
	"time"
)

// Calculator provides backoff calculation using a configurable strategy.
// It centralizes delay math shared by the retry interceptor and the
// subscription reconnect loop.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a new backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Calculate computes the backoff duration for the given attempt and parameters.
func (c *Calculator) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialBackoff, maxBackoff, multiplier, jitter)
}

// GetExponentialJitterCalculator returns a calculator configured with the
// exponential jitter strategy. This is the default for retries.
func GetExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{})
}

// GetLinearJitterCalculator returns a calculator configured with the
// linear jitter strategy.
func GetLinearJitterCalculator() *Calculator {
	return NewCalculator(LinearJitterStrategy{})
}
