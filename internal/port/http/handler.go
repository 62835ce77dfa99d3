package http

import (
	"encoding/json"
	"net/http"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	maxBodyBytes         = 1 << 20
	idempotencyKeyHeader = "Idempotency-Key"
)

type basketEnvelope struct {
	Cart *entity.Basket `json:"cart"`
}

type storeBasketResponse struct {
	UserName string `json:"userName"`
}

type deleteBasketResponse struct {
	IsSuccess bool `json:"isSuccess"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	BasketCheckoutDto *entity.CheckoutDetails `json:"basketCheckoutDto"`
}

type checkoutResponse struct {
	IsSuccess      bool            `json:"isSuccess"`
	CheckoutID     string          `json:"checkoutId"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	CleanupPending bool            `json:"cleanupPending"`
}

type BasketHandler struct {
	baskets   service.BasketService
	checkouts service.CheckoutService
	log       logger.Logger
}

func NewBasketHandler(baskets service.BasketService, checkouts service.CheckoutService, log logger.Logger) *BasketHandler {
	return &BasketHandler{
		baskets:   baskets,
		checkouts: checkouts,
		log:       log.Named("basket_handler"),
	}
}

func (h *BasketHandler) HandleGetBasket(w http.ResponseWriter, r *http.Request) {
	basket, err := h.baskets.GetBasket(r.Context(), chi.URLParam(r, "userName"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, basketEnvelope{Cart: basket})
}

// HandleStoreBasket replaces the user's basket. Each line's price is the unit
// price before discount; a line sent back with the price it was returned with
// keeps its stored listPrice.
func (h *BasketHandler) HandleStoreBasket(w http.ResponseWriter, r *http.Request) {
	var req basketEnvelope
	if !h.decode(w, r, &req) {
		return
	}
	if req.Cart == nil {
		writeError(w, r, http.StatusBadRequest, "invalid request", "cart is required")
		return
	}

	stored, err := h.baskets.StoreBasket(r.Context(), req.Cart)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, storeBasketResponse{UserName: stored.UserName})
}

func (h *BasketHandler) HandleDeleteBasket(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.baskets.DeleteBasket(r.Context(), chi.URLParam(r, "userName"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteBasketResponse{IsSuccess: deleted})
}

func (h *BasketHandler) HandleUpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, r, http.StatusBadRequest, "invalid request", "quantity is required")
		return
	}

	basket, err := h.baskets.UpdateItemQuantity(r.Context(), chi.URLParam(r, "userName"), chi.URLParam(r, "productId"), *req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, basketEnvelope{Cart: basket})
}

func (h *BasketHandler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	basket, err := h.baskets.RemoveItem(r.Context(), chi.URLParam(r, "userName"), chi.URLParam(r, "productId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, basketEnvelope{Cart: basket})
}

func (h *BasketHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.BasketCheckoutDto == nil {
		writeError(w, r, http.StatusBadRequest, "invalid request", "basketCheckoutDto is required")
		return
	}

	res, err := h.checkouts.Checkout(r.Context(), *req.BasketCheckoutDto, r.Header.Get(idempotencyKeyHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, checkoutResponse{
		IsSuccess:      true,
		CheckoutID:     res.CheckoutID,
		TotalPrice:     res.TotalPrice,
		CleanupPending: res.CleanupPending,
	})
}

func (h *BasketHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.log.Debugf("Failed to decode request body for %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func (h *BasketHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	details := ""
	if status < http.StatusInternalServerError {
		details = err.Error()
	} else {
		h.log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, r, status, msg, details)
}
