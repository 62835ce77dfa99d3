package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyUserName    = errors.New("user name cannot be empty")
	ErrEmptyProductID   = errors.New("product ID cannot be empty for basket item")
	ErrEmptyProductName = errors.New("product name cannot be empty for basket item")
	ErrNegativePrice    = errors.New("basket item price cannot be negative")
	ErrInvalidQuantity  = errors.New("basket item quantity must be positive")
	ErrItemNotFound     = errors.New("item not found in basket")
)

type BasketItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	ListPrice   decimal.Decimal `json:"listPrice"`
	Quantity    int             `json:"quantity"`
	Color       string          `json:"color,omitempty"`
}

// BasePrice is the undiscounted unit price discounts are applied against.
// Stored items carry it as ListPrice; see Basket.ResolveBasePrices for how
// client-sent lines get theirs.
func (i BasketItem) BasePrice() decimal.Decimal {
	if i.ListPrice.IsPositive() {
		return i.ListPrice
	}
	return i.Price
}

func (i BasketItem) lineKey() string {
	return i.ProductID + "\x00" + i.Color
}

func (i BasketItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i BasketItem) Validate() error {
	if i.ProductID == "" {
		return ErrEmptyProductID
	}
	if i.ProductName == "" {
		return fmt.Errorf("product %s: %w", i.ProductID, ErrEmptyProductName)
	}
	if i.Price.IsNegative() || i.ListPrice.IsNegative() {
		return fmt.Errorf("product %s: %w", i.ProductID, ErrNegativePrice)
	}
	if i.Quantity < 1 {
		return fmt.Errorf("product %s: %w", i.ProductID, ErrInvalidQuantity)
	}
	return nil
}

// WithDiscount prices the item at its base price minus amount, never below zero
// and never above the base price.
func (i BasketItem) WithDiscount(amount decimal.Decimal) BasketItem {
	base := i.BasePrice()
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	price := base.Sub(amount)
	if price.IsNegative() {
		price = decimal.Zero
	}
	i.ListPrice = base
	i.Price = price
	return i
}

type Basket struct {
	UserName  string       `json:"userName"`
	Items     []BasketItem `json:"items"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func NewBasket(userName string) *Basket {
	return &Basket{
		UserName:  userName,
		Items:     make([]BasketItem, 0),
		UpdatedAt: time.Now().UTC(),
	}
}

// TotalPrice is derived from the items on every call and is never stored as an authority.
func (b *Basket) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// MarshalJSON adds the derived totalPrice to the serialized form. Decoding ignores it.
func (b Basket) MarshalJSON() ([]byte, error) {
	type plain Basket
	out := struct {
		plain
		TotalPrice decimal.Decimal `json:"totalPrice"`
	}{plain: plain(b), TotalPrice: b.TotalPrice()}
	if out.Items == nil {
		out.Items = []BasketItem{}
	}
	return json.Marshal(out)
}

func (b *Basket) Validate() error {
	if strings.TrimSpace(b.UserName) == "" {
		return ErrEmptyUserName
	}
	for _, item := range b.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Normalize trims the user name, drops zero-quantity lines and merges duplicate
// product/color lines. Negative quantities are left in place so Validate
// rejects them.
func (b *Basket) Normalize() {
	b.UserName = strings.TrimSpace(b.UserName)
	merged := make([]BasketItem, 0, len(b.Items))
	index := make(map[string]int, len(b.Items))
	for _, item := range b.Items {
		if item.Quantity == 0 {
			continue
		}
		key := item.lineKey()
		if at, ok := index[key]; ok && item.Quantity > 0 && merged[at].Quantity > 0 {
			merged[at].Quantity += item.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, item)
	}
	b.Items = merged
}

// ResolveBasePrices fixes the undiscounted price of every line of an incoming
// basket against the stored one. A line whose Price equals the stored line's
// Price echoes an earlier response and keeps the stored base price. Any other
// line is priced from the Price it carries; a client-sent listPrice is only
// used when no Price was sent.
func (b *Basket) ResolveBasePrices(stored *Basket) {
	prior := make(map[string]BasketItem)
	if stored != nil {
		for _, item := range stored.Items {
			prior[item.lineKey()] = item
		}
	}
	for i := range b.Items {
		item := &b.Items[i]
		if p, ok := prior[item.lineKey()]; ok && item.Price.Equal(p.Price) {
			item.ListPrice = p.BasePrice()
			continue
		}
		if item.Price.IsPositive() {
			item.ListPrice = decimal.Zero
		}
	}
}

func (b *Basket) GetItem(productID string) (*BasketItem, int) {
	for i := range b.Items {
		if b.Items[i].ProductID == productID {
			return &b.Items[i], i
		}
	}
	return nil, -1
}

// UpdateItemQuantity sets the quantity of productID; zero removes the line.
func (b *Basket) UpdateItemQuantity(productID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	item, index := b.GetItem(productID)
	if item == nil {
		return ErrItemNotFound
	}
	if quantity == 0 {
		b.Items = append(b.Items[:index], b.Items[index+1:]...)
	} else {
		item.Quantity = quantity
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (b *Basket) RemoveItem(productID string) error {
	_, index := b.GetItem(productID)
	if index == -1 {
		return ErrItemNotFound
	}
	b.Items = append(b.Items[:index], b.Items[index+1:]...)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy that shares no slice memory with b.
func (b *Basket) Clone() *Basket {
	c := *b
	c.Items = make([]BasketItem, len(b.Items))
	copy(c.Items, b.Items)
	return &c
}

// ProductNames returns each distinct product name once, in first-seen order.
func (b *Basket) ProductNames() []string {
	seen := make(map[string]struct{}, len(b.Items))
	names := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		if _, ok := seen[item.ProductName]; ok {
			continue
		}
		seen[item.ProductName] = struct{}{}
		names = append(names, item.ProductName)
	}
	return names
}
