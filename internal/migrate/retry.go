package migrate

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxRetries = 2

// withRetry runs op, retrying transient failures with exponential backoff.
// Errors wrapped in backoff.Permanent are surfaced immediately.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}
