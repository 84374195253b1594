package dom

import (
	"context"
	"fmt"
	"time"
)

// DefaultPollInterval is used by Poll when interval is not positive.
const DefaultPollInterval = 250 * time.Millisecond

// Poll evaluates cond until it holds, the timeout elapses or ctx is done.
// The condition is always checked at least once.
func Poll(ctx context.Context, p Page, cond Condition, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		ok, err := cond(p)
		if err != nil {
			return fmt.Errorf("evaluate condition: %w", err)
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
