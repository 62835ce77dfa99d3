package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

const basketKeyPrefix = "basket:"

type basketCache struct {
	client redis.Cmdable
}

func NewBasketCache(client redis.Cmdable) repository.BasketCache {
	return &basketCache{client: client}
}

func basketKey(userName string) string {
	return basketKeyPrefix + userName
}

func (c *basketCache) Get(ctx context.Context, userName string) ([]byte, error) {
	val, err := c.client.Get(ctx, basketKey(userName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get basket for user %s from redis: %w", userName, err)
	}
	return val, nil
}

func (c *basketCache) Set(ctx context.Context, userName string, value []byte, ttl time.Duration) error {
	if userName == "" {
		return errors.New("cannot cache basket with empty user name")
	}
	if err := c.client.Set(ctx, basketKey(userName), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache basket for user %s in redis: %w", userName, err)
	}
	return nil
}

func (c *basketCache) SetIfAbsent(ctx context.Context, userName string, value []byte, ttl time.Duration) (bool, error) {
	if userName == "" {
		return false, errors.New("cannot cache basket with empty user name")
	}
	ok, err := c.client.SetNX(ctx, basketKey(userName), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to fill cached basket for user %s in redis: %w", userName, err)
	}
	return ok, nil
}

func (c *basketCache) Delete(ctx context.Context, userName string) error {
	if err := c.client.Del(ctx, basketKey(userName)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached basket for user %s from redis: %w", userName, err)
	}
	return nil
}
