package cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/keylock"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/repository"
)

const (
	defaultTTL          = 24 * time.Hour
	defaultCacheTimeout = 2 * time.Second
)

type Config struct {
	TTL          time.Duration
	CacheTimeout time.Duration
}

type basketRepository struct {
	store        repository.BasketRepository
	cache        repository.BasketCache
	log          logger.Logger
	metrics      *metrics.MetricsManager
	locks        *keylock.KeyedMutex
	ttl          time.Duration
	cacheTimeout time.Duration
}

// NewBasketRepository wraps store with a cache-aside layer. The store is always
// written first; the cache only ever mirrors what the store accepted. Fills on a
// miss are serialised with writes for the same user and never replace an entry
// that appeared in the meantime.
func NewBasketRepository(
	store repository.BasketRepository,
	cache repository.BasketCache,
	log logger.Logger,
	m *metrics.MetricsManager,
	cfg Config,
) repository.BasketRepository {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	cacheTimeout := cfg.CacheTimeout
	if cacheTimeout <= 0 {
		cacheTimeout = defaultCacheTimeout
	}
	return &basketRepository{
		store:        store,
		cache:        cache,
		log:          log.Named("cached_basket_repo"),
		metrics:      m,
		locks:        keylock.New(),
		ttl:          ttl,
		cacheTimeout: cacheTimeout,
	}
}

// cacheContext keeps the caller's values but not its cancellation, so a cache
// step that follows a committed store write is always attempted.
func (r *basketRepository) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cacheTimeout)
}

func (r *basketRepository) Get(ctx context.Context, userName string) (*entity.Basket, error) {
	if basket, ok := r.getCached(ctx, userName); ok {
		return basket, nil
	}

	unlock, err := r.locks.Lock(ctx, userName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	basket, err := r.store.Get(ctx, userName)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, userName, basket)
	return basket, nil
}

// fill caches a basket just read from the store. An entry written by a
// concurrent Put is at least as fresh, so it is left alone.
func (r *basketRepository) fill(ctx context.Context, userName string, basket *entity.Basket) {
	data, err := json.Marshal(basket)
	if err != nil {
		r.log.Warnf("Failed to encode basket for user %s for caching: %v", userName, err)
		return
	}

	cacheCtx, cancel := r.cacheContext(ctx)
	defer cancel()
	wrote, err := r.cache.SetIfAbsent(cacheCtx, userName, data, r.ttl)
	if err != nil {
		r.metrics.CacheErrorsTotal.WithLabelValues("set").Inc()
		r.log.Warnf("Failed to populate cache for user %s: %v", userName, err)
		return
	}
	if !wrote {
		r.log.Debugf("Cache for user %s was refreshed concurrently, keeping it", userName)
	}
}

func (r *basketRepository) getCached(ctx context.Context, userName string) (*entity.Basket, bool) {
	data, err := r.cache.Get(ctx, userName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		} else {
			r.metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			r.metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
			r.log.Warnf("Cache read failed for user %s, falling back to store: %v", userName, err)
		}
		return nil, false
	}

	var basket entity.Basket
	if err := json.Unmarshal(data, &basket); err != nil {
		r.metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		r.metrics.CacheErrorsTotal.WithLabelValues("decode").Inc()
		r.log.Warnf("Evicting undecodable cache entry for user %s: %v", userName, err)
		cacheCtx, cancel := r.cacheContext(ctx)
		defer cancel()
		r.evict(cacheCtx, userName)
		return nil, false
	}
	if basket.Items == nil {
		basket.Items = make([]entity.BasketItem, 0)
	}

	r.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return &basket, true
}

func (r *basketRepository) Put(ctx context.Context, basket *entity.Basket) (*entity.Basket, error) {
	if basket == nil {
		return nil, errors.New("cannot store nil basket")
	}

	unlock, err := r.locks.Lock(ctx, basket.UserName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored, err := r.store.Put(ctx, basket)

	cacheCtx, cancel := r.cacheContext(ctx)
	defer cancel()

	if err != nil {
		// The write may still have landed; whatever is cached can no longer be trusted.
		r.evict(cacheCtx, basket.UserName)
		return nil, err
	}

	data, err := json.Marshal(stored)
	if err == nil {
		err = r.cache.Set(cacheCtx, stored.UserName, data, r.ttl)
		if err == nil {
			return stored, nil
		}
	}
	r.metrics.CacheErrorsTotal.WithLabelValues("set").Inc()
	r.log.Warnf("Write-through to cache failed for user %s, invalidating entry: %v", stored.UserName, err)

	if errDel := r.cache.Delete(cacheCtx, stored.UserName); errDel != nil {
		r.metrics.CacheErrorsTotal.WithLabelValues("delete").Inc()
		r.log.Errorf("Cache entry for user %s may be stale: %v", stored.UserName, errDel)
		return nil, fmt.Errorf("basket for user %s stored but cache not refreshed: %w: %w", stored.UserName, repository.ErrCacheUnavailable, errDel)
	}
	return stored, nil
}

func (r *basketRepository) Delete(ctx context.Context, userName string) (bool, error) {
	unlock, err := r.locks.Lock(ctx, userName)
	if err != nil {
		return false, err
	}
	defer unlock()

	deleted, err := r.store.Delete(ctx, userName)

	cacheCtx, cancel := r.cacheContext(ctx)
	defer cancel()

	if err != nil {
		r.evict(cacheCtx, userName)
		return false, err
	}

	if err := r.cache.Delete(cacheCtx, userName); err != nil {
		r.metrics.CacheErrorsTotal.WithLabelValues("delete").Inc()
		r.log.Errorf("Basket for user %s deleted from store but cache entry remains: %v", userName, err)
		return deleted, fmt.Errorf("evict cached basket for user %s: %w: %w", userName, repository.ErrCacheUnavailable, err)
	}
	return deleted, nil
}

func (r *basketRepository) evict(ctx context.Context, userName string) {
	if err := r.cache.Delete(ctx, userName); err != nil {
		r.metrics.CacheErrorsTotal.WithLabelValues("delete").Inc()
		r.log.Warnf("Failed to evict cached basket for user %s: %v", userName, err)
	}
}
