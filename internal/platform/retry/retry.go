package retry

import (
	"context"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/cenkalti/backoff/v5"
)

type Config struct {
	Attempts uint
	Delay    time.Duration
}

// Do runs op until it succeeds, returns a backoff.Permanent error, ctx ends or
// cfg.Attempts is used up. Attempts are spaced by the fixed cfg.Delay.
func Do[T any](ctx context.Context, log logger.Logger, name string, cfg Config, op func(context.Context) (T, error)) (T, error) {
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 1
	}
	attempt := 0

	return backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			return op(ctx)
		},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.Delay)),
		backoff.WithMaxTries(attempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("%s failed (attempt %d/%d), retrying in %s: %v", name, attempt, attempts, next, err)
		}),
	)
}
