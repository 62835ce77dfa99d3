package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/keylock"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("basket-service/service")

const defaultDiscountConcurrency = 8

type DiscountClient interface {
	GetDiscount(ctx context.Context, productName string) (decimal.Decimal, error)
}

type BasketService interface {
	GetBasket(ctx context.Context, userName string) (*entity.Basket, error)
	StoreBasket(ctx context.Context, basket *entity.Basket) (*entity.Basket, error)
	DeleteBasket(ctx context.Context, userName string) (bool, error)
	UpdateItemQuantity(ctx context.Context, userName, productID string, quantity int) (*entity.Basket, error)
	RemoveItem(ctx context.Context, userName, productID string) (*entity.Basket, error)
}

type BasketServiceConfig struct {
	MaxDiscountConcurrency int
}

type basketService struct {
	repo                repository.BasketRepository
	discounts           DiscountClient
	locks               *keylock.KeyedMutex
	log                 logger.Logger
	metrics             *metrics.MetricsManager
	discountConcurrency int
	now                 func() time.Time
}

func NewBasketService(
	repo repository.BasketRepository,
	discounts DiscountClient,
	locks *keylock.KeyedMutex,
	log logger.Logger,
	m *metrics.MetricsManager,
	cfg BasketServiceConfig,
) BasketService {
	concurrency := cfg.MaxDiscountConcurrency
	if concurrency <= 0 {
		concurrency = defaultDiscountConcurrency
	}
	return &basketService{
		repo:                repo,
		discounts:           discounts,
		locks:               locks,
		log:                 log.Named("basket_service"),
		metrics:             m,
		discountConcurrency: concurrency,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

func (s *basketService) GetBasket(ctx context.Context, userName string) (*entity.Basket, error) {
	ctx, span := tracer.Start(ctx, "BasketService.GetBasket", trace.WithAttributes(attribute.String("basket.user", userName)))
	defer span.End()

	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, entity.ErrEmptyUserName)
	}

	basket, err := s.repo.Get(ctx, userName)
	if err != nil {
		return nil, s.repoError(span, "get", userName, err)
	}
	return basket, nil
}

// StoreBasket normalises and prices basket, then replaces the stored one.
// Lines echoed unchanged from the stored basket are repriced from their stored
// list price; any other line is repriced from the price it carries.
// If any discount lookup fails nothing is written.
func (s *basketService) StoreBasket(ctx context.Context, basket *entity.Basket) (*entity.Basket, error) {
	if basket == nil {
		return nil, fmt.Errorf("%w: basket is required", ErrValidation)
	}
	ctx, span := tracer.Start(ctx, "BasketService.StoreBasket", trace.WithAttributes(attribute.String("basket.user", basket.UserName)))
	defer span.End()

	b := basket.Clone()
	b.Normalize()
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	unlock, err := s.locks.Lock(ctx, b.UserName)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for basket lock: %w", ErrDependency, err)
	}
	defer unlock()

	current, err := s.repo.Get(ctx, b.UserName)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, s.repoError(span, "get", b.UserName, err)
	}
	b.ResolveBasePrices(current)

	return s.priceAndPut(ctx, span, "store", b)
}

func (s *basketService) UpdateItemQuantity(ctx context.Context, userName, productID string, quantity int) (*entity.Basket, error) {
	ctx, span := tracer.Start(ctx, "BasketService.UpdateItemQuantity", trace.WithAttributes(
		attribute.String("basket.user", userName),
		attribute.String("basket.product_id", productID),
		attribute.Int("basket.quantity", quantity),
	))
	defer span.End()

	return s.editItem(ctx, span, "update_item", userName, productID, func(b *entity.Basket) error {
		if quantity < 0 {
			return entity.ErrInvalidQuantity
		}
		return b.UpdateItemQuantity(productID, quantity)
	})
}

func (s *basketService) RemoveItem(ctx context.Context, userName, productID string) (*entity.Basket, error) {
	ctx, span := tracer.Start(ctx, "BasketService.RemoveItem", trace.WithAttributes(
		attribute.String("basket.user", userName),
		attribute.String("basket.product_id", productID),
	))
	defer span.End()

	return s.editItem(ctx, span, "remove_item", userName, productID, func(b *entity.Basket) error {
		return b.RemoveItem(productID)
	})
}

func (s *basketService) editItem(
	ctx context.Context,
	span trace.Span,
	operation, userName, productID string,
	edit func(*entity.Basket) error,
) (*entity.Basket, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, entity.ErrEmptyUserName)
	}
	if productID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, entity.ErrEmptyProductID)
	}

	unlock, err := s.locks.Lock(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for basket lock: %w", ErrDependency, err)
	}
	defer unlock()

	b, err := s.repo.Get(ctx, userName)
	if err != nil {
		return nil, s.repoError(span, "get", userName, err)
	}
	if err := edit(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.priceAndPut(ctx, span, operation, b)
}

// priceAndPut must be called with the user's lock held.
func (s *basketService) priceAndPut(ctx context.Context, span trace.Span, operation string, b *entity.Basket) (*entity.Basket, error) {
	if err := s.applyDiscounts(ctx, b); err != nil {
		s.metrics.BasketWritesTotal.WithLabelValues(operation, "pricing_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "pricing failed")
		s.log.Errorf("Pricing basket for user %s failed, basket left unchanged: %v", b.UserName, err)
		return nil, fmt.Errorf("%w: %w", ErrDependency, err)
	}
	b.UpdatedAt = s.now()

	stored, err := s.repo.Put(ctx, b)
	if err != nil {
		s.metrics.BasketWritesTotal.WithLabelValues(operation, "error").Inc()
		return nil, s.repoError(span, "put", b.UserName, err)
	}
	s.metrics.BasketWritesTotal.WithLabelValues(operation, "ok").Inc()
	s.log.Infof("Basket for user %s stored with %d items, total %s", stored.UserName, len(stored.Items), stored.TotalPrice())
	return stored, nil
}

// applyDiscounts looks up each distinct product name once, concurrently, and
// reprices every item from its base price.
func (s *basketService) applyDiscounts(ctx context.Context, b *entity.Basket) error {
	names := b.ProductNames()
	if len(names) == 0 {
		return nil
	}

	amounts := make([]decimal.Decimal, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.discountConcurrency)
	for i, name := range names {
		g.Go(func() error {
			amount, err := s.discounts.GetDiscount(gctx, name)
			if err != nil {
				return fmt.Errorf("discount for %q: %w", name, err)
			}
			amounts[i] = amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	byName := make(map[string]decimal.Decimal, len(names))
	for i, name := range names {
		byName[name] = amounts[i]
	}
	for i := range b.Items {
		b.Items[i] = b.Items[i].WithDiscount(byName[b.Items[i].ProductName])
	}
	return nil
}

func (s *basketService) DeleteBasket(ctx context.Context, userName string) (bool, error) {
	ctx, span := tracer.Start(ctx, "BasketService.DeleteBasket", trace.WithAttributes(attribute.String("basket.user", userName)))
	defer span.End()

	userName = strings.TrimSpace(userName)
	if userName == "" {
		return false, fmt.Errorf("%w: %w", ErrValidation, entity.ErrEmptyUserName)
	}

	unlock, err := s.locks.Lock(ctx, userName)
	if err != nil {
		return false, fmt.Errorf("%w: waiting for basket lock: %w", ErrDependency, err)
	}
	defer unlock()

	deleted, err := s.repo.Delete(ctx, userName)
	if err != nil {
		s.metrics.BasketWritesTotal.WithLabelValues("delete", "error").Inc()
		return deleted, s.repoError(span, "delete", userName, err)
	}
	s.metrics.BasketWritesTotal.WithLabelValues("delete", "ok").Inc()
	s.log.Infof("Basket for user %s deleted (existed: %t)", userName, deleted)
	return deleted, nil
}

func (s *basketService) repoError(span trace.Span, op, userName string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: user %s", ErrBasketNotFound, userName)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	s.log.Errorf("Basket %s for user %s failed: %v", op, userName, err)
	return fmt.Errorf("%w: %w", ErrDependency, err)
}
