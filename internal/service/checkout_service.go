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
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const cleanupTimeout = 5 * time.Second

type CheckoutPublisher interface {
	PublishCheckout(ctx context.Context, event entity.CheckoutEvent) error
}

type CheckoutResult struct {
	CheckoutID string
	TotalPrice decimal.Decimal
	// CleanupPending is set when the event was published but the basket could
	// not be removed afterwards.
	CleanupPending bool
}

type CheckoutService interface {
	Checkout(ctx context.Context, details entity.CheckoutDetails, idempotencyKey string) (*CheckoutResult, error)
}

type checkoutService struct {
	repo      repository.BasketRepository
	store     repository.BasketRepository
	publisher CheckoutPublisher
	locks     *keylock.KeyedMutex
	log       logger.Logger
	metrics   *metrics.MetricsManager
	now       func() time.Time
	newID     func() string
}

// NewCheckoutService reads the basket being checked out from store, bypassing
// any cache, and removes it through repo.
func NewCheckoutService(
	repo repository.BasketRepository,
	store repository.BasketRepository,
	publisher CheckoutPublisher,
	locks *keylock.KeyedMutex,
	log logger.Logger,
	m *metrics.MetricsManager,
) CheckoutService {
	return &checkoutService{
		repo:      repo,
		store:     store,
		publisher: publisher,
		locks:     locks,
		log:       log.Named("checkout_service"),
		metrics:   m,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Checkout hands the user's basket to the order domain. The basket is deleted
// only after the event was published; a failed publish leaves it in place so
// the caller can retry. idempotencyKey, when set, becomes the checkout id so a
// retried request publishes under the same id.
func (s *checkoutService) Checkout(ctx context.Context, details entity.CheckoutDetails, idempotencyKey string) (*CheckoutResult, error) {
	userName := strings.TrimSpace(details.UserName)
	ctx, span := tracer.Start(ctx, "CheckoutService.Checkout", trace.WithAttributes(attribute.String("basket.user", userName)))
	defer span.End()

	if userName == "" {
		s.metrics.CheckoutsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %w", ErrValidation, entity.ErrEmptyUserName)
	}
	if details.PaymentMethod < 0 {
		s.metrics.CheckoutsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: payment method %d is not valid", ErrValidation, details.PaymentMethod)
	}
	details.UserName = userName

	unlock, err := s.locks.Lock(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for basket lock: %w", ErrDependency, err)
	}
	defer unlock()

	basket, err := s.store.Get(ctx, userName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.CheckoutsTotal.WithLabelValues("not_found").Inc()
			s.log.Infof("Checkout requested for user %s without a basket", userName)
			return nil, fmt.Errorf("%w: user %s", ErrBasketNotFound, userName)
		}
		s.metrics.CheckoutsTotal.WithLabelValues("dependency_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "basket read failed")
		return nil, fmt.Errorf("%w: %w", ErrDependency, err)
	}

	checkoutID := idempotencyKey
	if checkoutID == "" {
		checkoutID = s.newID()
	}
	event := entity.NewCheckoutEvent(checkoutID, details, basket, s.now())
	span.SetAttributes(attribute.String("checkout.id", checkoutID))

	if err := s.publisher.PublishCheckout(ctx, event); err != nil {
		s.metrics.CheckoutsTotal.WithLabelValues("publish_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		s.log.Errorf("Checkout %s for user %s not published, basket kept: %v", checkoutID, userName, err)
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	result := &CheckoutResult{CheckoutID: checkoutID, TotalPrice: event.TotalPrice}

	// The event is out; removing the basket must not depend on the caller staying around.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := s.repo.Delete(cleanupCtx, userName); err != nil {
		result.CleanupPending = true
		s.metrics.CheckoutsTotal.WithLabelValues("cleanup_pending").Inc()
		s.log.Warnf("Checkout %s published but basket for user %s was not removed: %v", checkoutID, userName, err)
		return result, nil
	}

	s.metrics.CheckoutsTotal.WithLabelValues("completed").Inc()
	s.log.Infof("Checkout %s completed for user %s, total %s", checkoutID, userName, event.TotalPrice)
	return result, nil
}
