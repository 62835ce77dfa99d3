package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/keylock"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type basketDeps struct {
	repo      *MockBasketRepository
	discounts *MockDiscountClient
	metrics   *metrics.MetricsManager
	svc       BasketService
}

func newBasketDeps() *basketDeps {
	d := &basketDeps{
		repo:      new(MockBasketRepository),
		discounts: new(MockDiscountClient),
		metrics:   metrics.NewMetricsManager("test"),
	}
	d.svc = NewBasketService(d.repo, d.discounts, keylock.New(), logger.NewNop(), d.metrics, BasketServiceConfig{MaxDiscountConcurrency: 4})
	return d
}

func (d *basketDeps) noStoredBasket(user string) {
	d.repo.On("Get", mock.Anything, user).Return(nil, repository.ErrNotFound)
}

func TestStoreBasket_AppliesDiscounts(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.NewFromInt(2), nil).Once()
	d.discounts.On("GetDiscount", mock.Anything, "Samsung 10").Return(decimal.Zero, nil).Once()
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil).Once()

	stored, err := d.svc.StoreBasket(context.Background(), basketOf("swn",
		line("p1", "IPhone X", 10, 2),
		line("p2", "Samsung 10", 5, 1),
	))
	require.NoError(t, err)

	require.Len(t, stored.Items, 2)
	assert.True(t, decimal.NewFromInt(8).Equal(stored.Items[0].Price))
	assert.True(t, decimal.NewFromInt(5).Equal(stored.Items[1].Price))
	assert.True(t, decimal.NewFromInt(21).Equal(stored.TotalPrice()))
	assert.True(t, decimal.NewFromInt(10).Equal(stored.Items[0].ListPrice))
	d.discounts.AssertExpectations(t)
	d.repo.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.BasketWritesTotal.WithLabelValues("store", "ok")))
}

func TestStoreBasket_DoesNotMutateInput(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.NewFromInt(2), nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	in := basketOf("swn", line("p1", "IPhone X", 10, 2))
	_, err := d.svc.StoreBasket(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(in.Items[0].Price))
}

func TestStoreBasket_OneLookupPerDistinctProduct(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.NewFromInt(1), nil).Once()
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	black := line("p1", "IPhone X", 10, 1)
	black.Color = "Black"
	red := line("p1", "IPhone X", 10, 1)
	red.Color = "Red"

	stored, err := d.svc.StoreBasket(context.Background(), basketOf("swn", black, red))
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	d.discounts.AssertNumberOfCalls(t, "GetDiscount", 1)
}

func TestStoreBasket_PricingFailureWritesNothing(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	remoteErr := errors.New("discount service unavailable")
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.Zero, nil).Maybe()
	d.discounts.On("GetDiscount", mock.Anything, "Samsung 10").Return(decimal.Zero, remoteErr)

	_, err := d.svc.StoreBasket(context.Background(), basketOf("swn",
		line("p1", "IPhone X", 10, 2),
		line("p2", "Samsung 10", 5, 1),
	))
	require.ErrorIs(t, err, ErrDependency)
	assert.ErrorIs(t, err, remoteErr)
	d.repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.BasketWritesTotal.WithLabelValues("store", "pricing_failed")))
}

func TestStoreBasket_EmptyBasketSkipsPricing(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	stored, err := d.svc.StoreBasket(context.Background(), entity.NewBasket("swn"))
	require.NoError(t, err)
	assert.Empty(t, stored.Items)
	d.discounts.AssertNotCalled(t, "GetDiscount", mock.Anything, mock.Anything)
}

func TestStoreBasket_Validation(t *testing.T) {
	d := newBasketDeps()

	_, err := d.svc.StoreBasket(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.svc.StoreBasket(context.Background(), basketOf("", line("p1", "IPhone X", 10, 1)))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, entity.ErrEmptyUserName)

	_, err = d.svc.StoreBasket(context.Background(), basketOf("swn", line("p1", "IPhone X", -1, 1)))
	assert.ErrorIs(t, err, entity.ErrNegativePrice)

	_, err = d.svc.StoreBasket(context.Background(), basketOf("swn", line("p1", "IPhone X", 10, -3)))
	assert.ErrorIs(t, err, entity.ErrInvalidQuantity)

	d.discounts.AssertNotCalled(t, "GetDiscount", mock.Anything, mock.Anything)
	d.repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestStoreBasket_StoreFailures(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	d.discounts.On("GetDiscount", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(nil, repository.ErrCacheUnavailable)

	_, err := d.svc.StoreBasket(context.Background(), basketOf("swn", line("p1", "IPhone X", 10, 1)))
	assert.ErrorIs(t, err, ErrDependency)
	assert.ErrorIs(t, err, repository.ErrCacheUnavailable)
}

func TestStoreBasket_SerialisesWritesPerUser(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("swn")
	var inFlight, overlap int32
	d.discounts.On("GetDiscount", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}).Return(echo, nil)

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := d.svc.StoreBasket(context.Background(), basketOf("swn", line("p1", "IPhone X", 10, 1)))
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlap))
}

func TestStoreBasket_EchoedBasketDoesNotCompoundDiscount(t *testing.T) {
	d := newBasketDeps()
	stored := basketOf("swn", line("p1", "IPhone X", 10, 2).WithDiscount(decimal.NewFromInt(2)))
	d.repo.On("Get", mock.Anything, "swn").Return(stored, nil)
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.NewFromInt(2), nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	resent := stored.Clone()
	resent.Items[0].Quantity = 3
	b, err := d.svc.StoreBasket(context.Background(), resent)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(8).Equal(b.Items[0].Price))
	assert.True(t, decimal.NewFromInt(10).Equal(b.Items[0].ListPrice))
}

func TestStoreBasket_ChangedPriceIsRepricedFromNewPrice(t *testing.T) {
	d := newBasketDeps()
	stored := basketOf("swn", line("p1", "IPhone X", 10, 2).WithDiscount(decimal.NewFromInt(2)))
	d.repo.On("Get", mock.Anything, "swn").Return(stored, nil)
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.NewFromInt(2), nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	resent := stored.Clone()
	resent.Items[0].Price = decimal.NewFromInt(12)
	b, err := d.svc.StoreBasket(context.Background(), resent)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(b.Items[0].Price), "12 minus discount 2")
	assert.True(t, decimal.NewFromInt(12).Equal(b.Items[0].ListPrice))
}

func TestStoreBasket_CurrentBasketReadFailureWritesNothing(t *testing.T) {
	d := newBasketDeps()
	d.repo.On("Get", mock.Anything, "swn").Return(nil, repository.ErrConnectionFailed)

	_, err := d.svc.StoreBasket(context.Background(), basketOf("swn", line("p1", "IPhone X", 10, 1)))
	assert.ErrorIs(t, err, ErrDependency)
	d.discounts.AssertNotCalled(t, "GetDiscount", mock.Anything, mock.Anything)
	d.repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestStoreBasket_TrimsUserName(t *testing.T) {
	d := newBasketDeps()
	d.noStoredBasket("bob")
	d.repo.On("Put", mock.Anything, mock.MatchedBy(func(b *entity.Basket) bool {
		return b.UserName == "bob"
	})).Return(echo, nil).Once()

	b, err := d.svc.StoreBasket(context.Background(), entity.NewBasket(" bob "))
	require.NoError(t, err)
	assert.Equal(t, "bob", b.UserName)

	_, err = d.svc.StoreBasket(context.Background(), entity.NewBasket("   "))
	assert.ErrorIs(t, err, ErrValidation)
	d.repo.AssertExpectations(t)
}

func TestGetBasket(t *testing.T) {
	d := newBasketDeps()
	d.repo.On("Get", mock.Anything, "swn").Return(basketOf("swn", line("p1", "IPhone X", 8, 2)), nil)
	d.repo.On("Get", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)
	d.repo.On("Get", mock.Anything, "broken").Return(nil, repository.ErrQueryFailed)

	b, err := d.svc.GetBasket(context.Background(), "swn")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(16).Equal(b.TotalPrice()))

	_, err = d.svc.GetBasket(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrBasketNotFound)

	_, err = d.svc.GetBasket(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrDependency)

	_, err = d.svc.GetBasket(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateItemQuantity_RepricesWithoutCompounding(t *testing.T) {
	d := newBasketDeps()
	stored := basketOf("swn", line("p1", "IPhone X", 10, 2).WithDiscount(decimal.NewFromInt(2)))
	d.repo.On("Get", mock.Anything, "swn").Return(stored, nil)
	d.discounts.On("GetDiscount", mock.Anything, "IPhone X").Return(decimal.NewFromInt(2), nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	b, err := d.svc.UpdateItemQuantity(context.Background(), "swn", "p1", 3)
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.Equal(t, 3, b.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(8).Equal(b.Items[0].Price))
	assert.True(t, decimal.NewFromInt(24).Equal(b.TotalPrice()))
}

func TestUpdateItemQuantity_ZeroRemoves(t *testing.T) {
	d := newBasketDeps()
	d.repo.On("Get", mock.Anything, "swn").Return(basketOf("swn", line("p1", "IPhone X", 10, 2), line("p2", "Samsung 10", 5, 1)), nil)
	d.discounts.On("GetDiscount", mock.Anything, "Samsung 10").Return(decimal.Zero, nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	b, err := d.svc.UpdateItemQuantity(context.Background(), "swn", "p1", 0)
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "p2", b.Items[0].ProductID)
}

func TestUpdateItemQuantity_Errors(t *testing.T) {
	d := newBasketDeps()
	d.repo.On("Get", mock.Anything, "swn").Return(basketOf("swn", line("p1", "IPhone X", 10, 2)), nil)
	d.repo.On("Get", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)

	_, err := d.svc.UpdateItemQuantity(context.Background(), "swn", "p1", -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = d.svc.UpdateItemQuantity(context.Background(), "swn", "nope", 1)
	assert.ErrorIs(t, err, entity.ErrItemNotFound)

	_, err = d.svc.UpdateItemQuantity(context.Background(), "ghost", "p1", 1)
	assert.ErrorIs(t, err, ErrBasketNotFound)

	_, err = d.svc.UpdateItemQuantity(context.Background(), "swn", "", 1)
	assert.ErrorIs(t, err, ErrValidation)

	d.repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRemoveItem(t *testing.T) {
	d := newBasketDeps()
	d.repo.On("Get", mock.Anything, "swn").Return(basketOf("swn", line("p1", "IPhone X", 10, 2)), nil)
	d.repo.On("Put", mock.Anything, mock.Anything).Return(echo, nil)

	b, err := d.svc.RemoveItem(context.Background(), "swn", "p1")
	require.NoError(t, err)
	assert.Empty(t, b.Items, "basket with zero items is kept")

	_, err = d.svc.RemoveItem(context.Background(), "swn", "p9")
	assert.ErrorIs(t, err, entity.ErrItemNotFound)
}

func TestDeleteBasket(t *testing.T) {
	d := newBasketDeps()
	d.repo.On("Delete", mock.Anything, "swn").Return(true, nil).Once()
	d.repo.On("Delete", mock.Anything, "swn").Return(false, nil).Once()
	d.repo.On("Delete", mock.Anything, "stale").Return(true, repository.ErrCacheUnavailable)

	deleted, err := d.svc.DeleteBasket(context.Background(), "swn")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = d.svc.DeleteBasket(context.Background(), "swn")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete is a no-op")

	_, err = d.svc.DeleteBasket(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrDependency)

	_, err = d.svc.DeleteBasket(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}
