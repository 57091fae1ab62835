// Package backoff computes delays between attempts of a repeated remote
// operation: retried HTTP requests and job status polling in the client.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed). Attempt 1 is
// the first retry after the initial try.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant waits the same interval before every attempt.
type Constant time.Duration

// Delay returns the fixed interval.
func (c Constant) Delay(int) time.Duration { return time.Duration(c) }

// Exponential doubles the delay each attempt, capped at Max.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}

// Jitter spreads the delays of another strategy uniformly over
// [Delay/2, Delay] so clients polling the same job do not synchronise.
type Jitter struct {
	Base Strategy
}

// Delay returns a random duration between half and all of the base delay.
func (j Jitter) Delay(attempt int) time.Duration {
	d := j.Base.Delay(attempt)
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1)) //nolint:gosec // jitter does not need crypto rand
}

// Default is used by the client when none is configured: exponential from
// 100ms to 5s with jitter.
func Default() Strategy {
	return Jitter{Base: NewExponential(100*time.Millisecond, 5*time.Second)}
}

// Sleep waits for the delay of attempt or until ctx is done.
func Sleep(ctx context.Context, s Strategy, attempt int) error {
	d := s.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
