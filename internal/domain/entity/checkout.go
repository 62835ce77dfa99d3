package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod int

// CheckoutDetails is what the caller supplies at checkout; the basket contributes the rest.
type CheckoutDetails struct {
	UserName   string `json:"userName"`
	CustomerID string `json:"customerId"`

	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	EmailAddress string `json:"emailAddress"`
	AddressLine  string `json:"addressLine"`
	Country      string `json:"country"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`

	CardName      string        `json:"cardName"`
	CardNumber    string        `json:"cardNumber"`
	Expiration    string        `json:"expiration"`
	CVV           string        `json:"cvv"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type CheckoutItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Color       string          `json:"color,omitempty"`
}

// CheckoutEvent is the snapshot handed to the order domain. It is built once by
// NewCheckoutEvent and must not be modified afterwards.
type CheckoutEvent struct {
	CheckoutID string          `json:"checkoutId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	CheckoutDetails
	Items      []CheckoutItem `json:"items"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func NewCheckoutEvent(checkoutID string, details CheckoutDetails, basket *Basket, now time.Time) CheckoutEvent {
	items := make([]CheckoutItem, 0, len(basket.Items))
	for _, item := range basket.Items {
		items = append(items, CheckoutItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Color:       item.Color,
		})
	}
	details.UserName = basket.UserName

	return CheckoutEvent{
		CheckoutID:      checkoutID,
		TotalPrice:      basket.TotalPrice(),
		CheckoutDetails: details,
		Items:           items,
		OccurredAt:      now.UTC(),
	}
}
