package indexer

import (
	"context"
	"time"
)

const maxRetryDelay = 10 * time.Second

// withRetry calls fn up to maxRetries+1 times, doubling the pause between
// attempts up to maxRetryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= maxRetries {
			return err
		}

		if err := (TimerSleeper{}).Sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, maxRetryDelay)
	}
}
