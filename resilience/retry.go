package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/grantsnap/statekit/errors"
)

// Policy configures Do.
type Policy struct {
	// Attempts is the maximum number of attempts, including the first.
	Attempts int
	// Backoff is the delay before the first retry.
	Backoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Factor multiplies the delay after each retry.
	Factor float64
	// Jitter randomizes each delay by up to this fraction (0.0 to 1.0).
	Jitter float64
	// RetryIf decides whether err is worth another attempt. Defaults to Retryable.
	RetryIf func(err error) bool
	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Backoff:    100 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Factor:     2.0,
		Jitter:     0.1,
	}
}

func (p *Policy) applyDefaults() {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = d.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Factor <= 0 {
		p.Factor = d.Factor
	}
	if p.RetryIf == nil {
		p.RetryIf = Retryable
	}
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// Do calls fn until it succeeds, RetryIf rejects its error, the attempts
// run out or ctx ends. It returns the last error from fn, or ctx's error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p.applyDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.RetryIf(lastErr) || attempt == p.Attempts {
			break
		}

		wait := p.backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// backoff returns the delay after the given attempt.
func (p Policy) backoff(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(p.Factor, float64(attempt-1))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if d < 0 {
		d = float64(p.Backoff)
	}
	return time.Duration(d)
}
