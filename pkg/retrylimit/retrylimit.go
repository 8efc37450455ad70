// Package retrylimit paces outbound calls with an adaptive token bucket and
// retries failed calls with capped exponential backoff.
//
//	lim := retrylimit.NewAdaptiveLimiter(2, 0.5, 5, 0.5, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.Policy{Attempts: 3}, lim, func(ctx context.Context) error {
//	    return callUpstream(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a rate limit that speeds up after successes and backs
// off after throttling.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	cooldown  time.Duration
	lastError time.Time
	now       func() time.Time
}

// NewAdaptiveLimiter starts at initial requests per second and stays within
// [min, max]. stepUp is added on success, stepDown multiplies on throttling.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min <= 0 {
		min = 0.1
	}
	if max < min {
		max = min
	}
	initial = clampLimit(initial, min, max)
	if stepDown <= 0 || stepDown >= 1 {
		stepDown = 0.5
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
		cooldown: 10 * time.Second,
		now:      time.Now,
	}
}

// Wait blocks until a token is available or ctx ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless throttling happened recently.
func (a *AdaptiveLimiter) Success() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastError) > a.cooldown {
		a.setLimit(a.limiter.Limit() + a.stepUp)
	}
}

// Throttled lowers the rate after the upstream pushed back.
func (a *AdaptiveLimiter) Throttled() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = a.now()
	a.setLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) setLimit(l rate.Limit) {
	l = clampLimit(l, a.minLimit, a.maxLimit)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burstFor(l))
	}
}

func clampLimit(l, min, max rate.Limit) rate.Limit {
	if l < min {
		return min
	}
	if l > max {
		return max
	}
	return l
}

func burstFor(l rate.Limit) int {
	if l < 1 {
		return 1
	}
	return int(l)
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Policy configures Do.
type Policy struct {
	Attempts     int           // total tries, minimum 1
	InitialDelay time.Duration // first backoff
	MaxDelay     time.Duration // backoff cap
	Multiplier   float64
	Jitter       bool
	// Retryable decides whether an error is worth another try. Nil retries
	// everything except Permanent errors.
	Retryable func(error) bool
	// OnRetry runs before sleeping for the next attempt.
	OnRetry func(attempt int, err error)
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// ErrAttemptsExhausted wraps the last error once every attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

type exhaustedError struct {
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%d attempts failed: %v", e.attempts, e.last)
}

func (e *exhaustedError) Unwrap() []error { return []error{ErrAttemptsExhausted, e.last} }

// Do runs fn until it succeeds, returns a Permanent or non-retryable error,
// ctx ends, or the policy runs out of attempts. lim may be nil.
func Do(ctx context.Context, p Policy, lim *AdaptiveLimiter, fn func(context.Context) error) error {
	p = p.withDefaults()
	delay := p.InitialDelay

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			lim.Success()
			if attempt > 1 {
				log.Printf("[RETRY] action=recovered attempt=%d", attempt)
			}
			return nil
		}
		last = err

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if IsThrottle(err) {
			lim.Throttled()
		}
		if attempt == p.Attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		wait := delay
		if p.Jitter {
			wait = addJitter(wait)
		}
		log.Printf("[RETRY] action=backoff attempt=%d wait=%s err=%v", attempt, wait, err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return &exhaustedError{attempts: p.Attempts, last: last}
}

// IsThrottle reports whether err carries a 429 or 5xx status.
func IsThrottle(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	code := sc.HTTPStatus()
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// addJitter adds up to 25% of delay.
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)))
}
