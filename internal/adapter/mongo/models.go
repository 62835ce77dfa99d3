package mongo

import (
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type basketItemDocument struct {
	ProductID   string               `bson:"product_id"`
	ProductName string               `bson:"product_name"`
	Price       primitive.Decimal128 `bson:"price"`
	ListPrice   primitive.Decimal128 `bson:"list_price"`
	Quantity    int                  `bson:"quantity"`
	Color       string               `bson:"color,omitempty"`
}

// basketDocument keeps total_price for readers of the raw collection; it is
// recomputed from items when loaded.
type basketDocument struct {
	UserName   string               `bson:"_id"`
	Items      []basketItemDocument `bson:"items"`
	TotalPrice primitive.Decimal128 `bson:"total_price"`
	UpdatedAt  time.Time            `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", v.String(), err)
	}
	return d, nil
}

func toBasketDocument(b *entity.Basket) (*basketDocument, error) {
	total, err := toDecimal128(b.TotalPrice())
	if err != nil {
		return nil, err
	}
	doc := &basketDocument{
		UserName:   b.UserName,
		Items:      make([]basketItemDocument, 0, len(b.Items)),
		TotalPrice: total,
		UpdatedAt:  b.UpdatedAt,
	}
	for _, item := range b.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return nil, err
		}
		listPrice, err := toDecimal128(item.BasePrice())
		if err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, basketItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       price,
			ListPrice:   listPrice,
			Quantity:    item.Quantity,
			Color:       item.Color,
		})
	}
	return doc, nil
}

func (d *basketDocument) toEntity() (*entity.Basket, error) {
	b := &entity.Basket{
		UserName:  d.UserName,
		Items:     make([]entity.BasketItem, 0, len(d.Items)),
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return nil, err
		}
		listPrice, err := fromDecimal128(item.ListPrice)
		if err != nil {
			return nil, err
		}
		b.Items = append(b.Items, entity.BasketItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       price,
			ListPrice:   listPrice,
			Quantity:    item.Quantity,
			Color:       item.Color,
		})
	}
	return b, nil
}
