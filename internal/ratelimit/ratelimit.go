package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
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

// Jitter pauses for a random duration in [min, max] on every Wait. It is used
// both between gallery interactions and between product pages.
type Jitter struct {
	minDelay time.Duration
	maxDelay time.Duration
	mu       sync.Mutex
	sleep    Sleeper
	rand     func(n int64) int64
}

func NewJitter(minDelay, maxDelay time.Duration) *Jitter {
	return &Jitter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		sleep:    sleep,
		rand:     rand.Int63n,
	}
}

// WithSleeper replaces the blocking sleep, for tests.
func (j *Jitter) WithSleeper(s Sleeper) *Jitter {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sleep = s
	return j
}

func (j *Jitter) Wait(ctx context.Context) error {
	j.mu.Lock()
	delay := j.calculateDelay()
	s := j.sleep
	j.mu.Unlock()

	return s(ctx, delay)
}

// Delay returns the current bounds.
func (j *Jitter) Delay() (time.Duration, time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.minDelay, j.maxDelay
}

func (j *Jitter) calculateDelay() time.Duration {
	if j.maxDelay <= j.minDelay {
		return j.minDelay
	}

	delta := j.maxDelay - j.minDelay
	return j.minDelay + time.Duration(j.rand(int64(delta)+1))
}

// AdaptiveRateLimiter widens its delay after repeated failures, which on
// retail sites usually means we are being throttled, and eases back towards
// the configured floor after a run of successes.
type AdaptiveRateLimiter struct {
	*Jitter
	baseMin       time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		Jitter:        NewJitter(minDelay, maxDelay),
		baseMin:       minDelay,
		maxErrorCount: 3,
		backoffFactor: 1.5,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.baseMin {
			newMin = a.baseMin
		}
		a.minDelay = newMin
		if a.maxDelay < newMin {
			a.maxDelay = newMin
		}
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > 60*time.Second {
			newMin = 60 * time.Second
		}
		if newMax > 120*time.Second {
			newMax = 120 * time.Second
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}
