package repository

import (
	"context"
	"time"
)

// BasketCache is a plain byte-string cache keyed by user name.
// Get returns ErrNotFound on a miss. SetIfAbsent writes only when no entry
// exists and reports whether it wrote.
type BasketCache interface {
	Get(ctx context.Context, userName string) ([]byte, error)
	Set(ctx context.Context, userName string, value []byte, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, userName string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, userName string) error
}
