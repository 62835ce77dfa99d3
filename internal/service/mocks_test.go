package service

import (
	"context"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockBasketRepository struct {
	mock.Mock
}

func (m *MockBasketRepository) Get(ctx context.Context, userName string) (*entity.Basket, error) {
	args := m.Called(ctx, userName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Basket).Clone(), args.Error(1)
}

// Put returns what the expectation returns; a func(*entity.Basket) *entity.Basket
// return value is applied to the argument.
func (m *MockBasketRepository) Put(ctx context.Context, basket *entity.Basket) (*entity.Basket, error) {
	args := m.Called(ctx, basket)
	switch v := args.Get(0).(type) {
	case func(*entity.Basket) *entity.Basket:
		return v(basket), args.Error(1)
	case *entity.Basket:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBasketRepository) Delete(ctx context.Context, userName string) (bool, error) {
	args := m.Called(ctx, userName)
	return args.Bool(0), args.Error(1)
}

func echo(b *entity.Basket) *entity.Basket { return b }

type MockDiscountClient struct {
	mock.Mock
}

func (m *MockDiscountClient) GetDiscount(ctx context.Context, productName string) (decimal.Decimal, error) {
	args := m.Called(ctx, productName)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockCheckoutPublisher struct {
	mock.Mock
}

func (m *MockCheckoutPublisher) PublishCheckout(ctx context.Context, event entity.CheckoutEvent) error {
	return m.Called(ctx, event).Error(0)
}

func basketOf(user string, items ...entity.BasketItem) *entity.Basket {
	b := entity.NewBasket(user)
	b.Items = append(b.Items, items...)
	return b
}

func line(id, name string, price int64, qty int) entity.BasketItem {
	return entity.BasketItem{ProductID: id, ProductName: name, Price: decimal.NewFromInt(price), Quantity: qty}
}
