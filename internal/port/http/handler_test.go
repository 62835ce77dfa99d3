package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBasketService struct {
	mock.Mock
}

func (m *MockBasketService) basket(args mock.Arguments) (*entity.Basket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Basket), args.Error(1)
}

func (m *MockBasketService) GetBasket(ctx context.Context, userName string) (*entity.Basket, error) {
	return m.basket(m.Called(ctx, userName))
}

func (m *MockBasketService) StoreBasket(ctx context.Context, b *entity.Basket) (*entity.Basket, error) {
	return m.basket(m.Called(ctx, b))
}

func (m *MockBasketService) DeleteBasket(ctx context.Context, userName string) (bool, error) {
	args := m.Called(ctx, userName)
	return args.Bool(0), args.Error(1)
}

func (m *MockBasketService) UpdateItemQuantity(ctx context.Context, userName, productID string, quantity int) (*entity.Basket, error) {
	return m.basket(m.Called(ctx, userName, productID, quantity))
}

func (m *MockBasketService) RemoveItem(ctx context.Context, userName, productID string) (*entity.Basket, error) {
	return m.basket(m.Called(ctx, userName, productID))
}

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Checkout(ctx context.Context, details entity.CheckoutDetails, key string) (*service.CheckoutResult, error) {
	args := m.Called(ctx, details, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CheckoutResult), args.Error(1)
}

type testAPI struct {
	baskets   *MockBasketService
	checkouts *MockCheckoutService
	metrics   *metrics.MetricsManager
	handler   http.Handler
}

func newTestAPI() *testAPI {
	a := &testAPI{
		baskets:   new(MockBasketService),
		checkouts: new(MockCheckoutService),
		metrics:   metrics.NewMetricsManager("test"),
	}
	h := NewBasketHandler(a.baskets, a.checkouts, logger.NewNop())
	a.handler = NewRouter(h, a.metrics, logger.NewNop(), 0)
	return a
}

func (a *testAPI) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sampleBasket() *entity.Basket {
	b := entity.NewBasket("swn")
	b.Items = []entity.BasketItem{
		{ProductID: "p1", ProductName: "IPhone X", Price: decimal.NewFromInt(8), ListPrice: decimal.NewFromInt(10), Quantity: 2},
		{ProductID: "p2", ProductName: "Samsung 10", Price: decimal.NewFromInt(5), Quantity: 1},
	}
	return b
}

func TestHandleGetBasket(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("GetBasket", mock.Anything, "swn").Return(sampleBasket(), nil)
	a.baskets.On("GetBasket", mock.Anything, "ghost").Return(nil, fmt.Errorf("%w: user ghost", service.ErrBasketNotFound))

	rec := a.do(http.MethodGet, "/basket/swn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeBody(t, rec)["cart"].(map[string]any)
	assert.Equal(t, "swn", cart["userName"])
	assert.Equal(t, "21", cart["totalPrice"])

	rec = a.do(http.MethodGet, "/basket/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "basket not found", decodeBody(t, rec)["error"])
}

func TestHandleStoreBasket(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("StoreBasket", mock.Anything, mock.MatchedBy(func(b *entity.Basket) bool {
		return b.UserName == "swn" && len(b.Items) == 1 && b.Items[0].Price.Equal(decimal.NewFromInt(10))
	})).Return(sampleBasket(), nil).Once()

	body := `{"cart":{"userName":"swn","items":[{"productId":"p1","productName":"IPhone X","price":"10","quantity":2,"color":"Black"}]}}`
	rec := a.do(http.MethodPost, "/basket", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "swn", decodeBody(t, rec)["userName"])
	a.baskets.AssertExpectations(t)
}

func TestHandleStoreBasket_BadRequests(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("StoreBasket", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: %w", service.ErrValidation, entity.ErrEmptyUserName))

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/basket", `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/basket", `{}`).Code)

	rec := a.do(http.MethodPost, "/basket", `{"cart":{"userName":"","items":[]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["details"], "user name cannot be empty")
}

func TestHandleStoreBasket_PricingUnavailable(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("StoreBasket", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: discount for \"IPhone X\": unavailable", service.ErrDependency))

	rec := a.do(http.MethodPost, "/basket", `{"cart":{"userName":"swn","items":[]}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["details"], "internal causes are not echoed")
}

func TestHandleDeleteBasket(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("DeleteBasket", mock.Anything, "swn").Return(true, nil)

	rec := a.do(http.MethodDelete, "/basket/swn", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["isSuccess"])
}

func TestHandleItemEdits(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("UpdateItemQuantity", mock.Anything, "swn", "p1", 3).Return(sampleBasket(), nil)
	a.baskets.On("UpdateItemQuantity", mock.Anything, "swn", "p9", 1).Return(nil, fmt.Errorf("%w: %w", service.ErrValidation, entity.ErrItemNotFound))
	a.baskets.On("RemoveItem", mock.Anything, "swn", "p2").Return(sampleBasket(), nil)

	rec := a.do(http.MethodPut, "/basket/swn/items/p1", `{"quantity":3}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPut, "/basket/swn/items/p9", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPut, "/basket/swn/items/p1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "quantity is required")

	rec = a.do(http.MethodDelete, "/basket/swn/items/p2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCheckout(t *testing.T) {
	a := newTestAPI()
	a.checkouts.On("Checkout", mock.Anything, mock.MatchedBy(func(d entity.CheckoutDetails) bool {
		return d.UserName == "swn" && d.EmailAddress == "swn@example.com" && d.PaymentMethod == 1
	}), "key-1").Return(&service.CheckoutResult{CheckoutID: "key-1", TotalPrice: decimal.NewFromInt(21)}, nil).Once()

	body := `{"basketCheckoutDto":{"userName":"swn","customerId":"c1","emailAddress":"swn@example.com","paymentMethod":1}}`
	rec := a.do(http.MethodPost, "/basket/checkout", body, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Equal(t, true, out["isSuccess"])
	assert.Equal(t, "key-1", out["checkoutId"])
	assert.Equal(t, false, out["cleanupPending"])
	assert.Equal(t, "21", out["totalPrice"])
	a.checkouts.AssertExpectations(t)
}

func TestHandleCheckout_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", service.ErrValidation, http.StatusBadRequest},
		{"not found", service.ErrBasketNotFound, http.StatusNotFound},
		{"publish failed", fmt.Errorf("%w: no responders", service.ErrPublishFailed), http.StatusBadGateway},
		{"dependency", fmt.Errorf("%w: redis down", service.ErrDependency), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAPI()
			a.checkouts.On("Checkout", mock.Anything, mock.Anything, "").Return(nil, tc.err)

			rec := a.do(http.MethodPost, "/basket/checkout", `{"basketCheckoutDto":{"userName":"swn"}}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["request_id"])
		})
	}
}

func TestHandleCheckout_MissingDto(t *testing.T) {
	a := newTestAPI()
	rec := a.do(http.MethodPost, "/basket/checkout", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	a.checkouts.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newTestAPI()
	a.baskets.On("GetBasket", mock.Anything, "swn").Return(sampleBasket(), nil)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "").Code)
	a.do(http.MethodGet, "/basket/swn", "")

	rec := a.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/basket/{userName}"`)
	assert.NotContains(t, rec.Body.String(), `route="/basket/swn"`)
}
