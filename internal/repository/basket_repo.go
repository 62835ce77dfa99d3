package repository

import (
	"context"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
)

// BasketRepository is implemented by the persistent store and by the cache-aside decorator.
type BasketRepository interface {
	Get(ctx context.Context, userName string) (*entity.Basket, error)
	Put(ctx context.Context, basket *entity.Basket) (*entity.Basket, error)
	Delete(ctx context.Context, userName string) (bool, error)
}
