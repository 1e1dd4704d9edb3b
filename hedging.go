package gandewa

import (
	"context"
	"errors"
	"time"
)

type outcome struct {
	value any
	err   error
}

// isContextError reports whether err is a raw cancellation signal.
func isContextError(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// WithTimeoutAndCleanup races op against a deadline. The losing
// execution is interrupted through its context and the optional cleanup
// callback runs before *TimeoutError surfaces. A caller-initiated
// cancellation surfaces as CancelledError, never as a timeout.
func WithTimeoutAndCleanup(path string, timeout time.Duration, cleanup func(), op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		results := make(chan outcome, 1)
		go func() {
			value, err := op(opCtx)
			results <- outcome{value: value, err: err}
		}()

		select {
		case out := <-results:
			// An op that surfaces the fired deadline as a raw context
			// error gets the same treatment as the Done branch.
			if isContextError(out.err) && opCtx.Err() != nil {
				if cleanup != nil {
					cleanup()
				}
				if ctx.Err() != nil {
					return nil, &CancelledError{Path: path}
				}
				return nil, &TimeoutError{Path: path, Timeout: timeout}
			}
			return out.value, out.err
		case <-opCtx.Done():
			cancel()
			if cleanup != nil {
				cleanup()
			}
			if ctx.Err() != nil {
				return nil, &CancelledError{Path: path}
			}
			return nil, &TimeoutError{Path: path, Timeout: timeout}
		}
	}
}

// HedgingConfig controls speculative duplicate requests.
type HedgingConfig struct {
	// HedgeDelay is how long to wait without a result before launching
	// the next duplicate. Zero means 1s.
	HedgeDelay time.Duration
	// MaxHedges bounds the number of speculative duplicates beyond the
	// primary attempt. Zero means 1.
	MaxHedges int
	// TotalTimeout caps the whole hedged operation. Zero means no cap.
	TotalTimeout time.Duration
	// OnHedge, when set, observes each speculative duplicate launch.
	OnHedge func()
}

// WithHedging launches a primary attempt and, after each HedgeDelay with
// no completion, up to MaxHedges speculative duplicates. The first
// attempt to complete wins and the rest are interrupted through the
// shared context.
func WithHedging(path string, config HedgingConfig, op Operation) Operation {
	if config.HedgeDelay <= 0 {
		config.HedgeDelay = time.Second
	}
	if config.MaxHedges <= 0 {
		config.MaxHedges = 1
	}

	return func(ctx context.Context) (any, error) {
		var hedgeCtx context.Context
		var cancel context.CancelFunc
		if config.TotalTimeout > 0 {
			hedgeCtx, cancel = context.WithTimeout(ctx, config.TotalTimeout)
		} else {
			hedgeCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		// Buffered so interrupted losers never block on send.
		results := make(chan outcome, config.MaxHedges+1)
		launch := func() {
			go func() {
				value, err := op(hedgeCtx)
				results <- outcome{value: value, err: err}
			}()
		}

		launch()
		launched := 1

		timer := time.NewTimer(config.HedgeDelay)
		defer timer.Stop()

		for {
			select {
			case out := <-results:
				if isContextError(out.err) && hedgeCtx.Err() != nil {
					if ctx.Err() != nil {
						return nil, &CancelledError{Path: path}
					}
					return nil, &TimeoutError{Path: path, Timeout: config.TotalTimeout}
				}
				return out.value, out.err
			case <-timer.C:
				if launched <= config.MaxHedges {
					if config.OnHedge != nil {
						config.OnHedge()
					}
					launch()
					launched++
					timer.Reset(config.HedgeDelay)
				}
			case <-hedgeCtx.Done():
				if ctx.Err() != nil {
					return nil, &CancelledError{Path: path}
				}
				return nil, &TimeoutError{Path: path, Timeout: config.TotalTimeout}
			}
		}
	}
}
