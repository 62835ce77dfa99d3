package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), logger.NewNop(), "connect", Config{Attempts: 5, Delay: time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection refused")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), logger.NewNop(), "connect", Config{Attempts: 3, Delay: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("connection refused")
		})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStops(t *testing.T) {
	calls := 0
	badCfg := errors.New("bad credentials")
	_, err := Do(context.Background(), logger.NewNop(), "connect", Config{Attempts: 5, Delay: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, backoff.Permanent(badCfg)
		})
	assert.ErrorIs(t, err, badCfg)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, logger.NewNop(), "connect", Config{Attempts: 5, Delay: time.Second},
		func(context.Context) (int, error) {
			return 0, errors.New("connection refused")
		})
	assert.Error(t, err)
}
