package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type basketRepository struct {
	collection *mongo.Collection
}

// NewBasketRepository returns the authoritative basket store. Baskets are keyed by
// user name in _id, so Put is a plain upsert.
func NewBasketRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.BasketRepository {
	return &basketRepository{
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
}

func (r *basketRepository) Get(ctx context.Context, userName string) (*entity.Basket, error) {
	var doc basketDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": userName}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get basket for user %s: %w: %w", userName, repository.ErrQueryFailed, err)
	}

	basket, err := doc.toEntity()
	if err != nil {
		return nil, fmt.Errorf("decode basket for user %s: %w", userName, err)
	}
	return basket, nil
}

func (r *basketRepository) Put(ctx context.Context, basket *entity.Basket) (*entity.Basket, error) {
	if basket == nil || basket.UserName == "" {
		return nil, errors.New("cannot store nil basket or basket with empty user name")
	}

	doc, err := toBasketDocument(basket)
	if err != nil {
		return nil, fmt.Errorf("encode basket for user %s: %w", basket.UserName, err)
	}

	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": basket.UserName}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("store basket for user %s: %w: %w", basket.UserName, repository.ErrQueryFailed, err)
	}

	return doc.toEntity()
}

func (r *basketRepository) Delete(ctx context.Context, userName string) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": userName})
	if err != nil {
		return false, fmt.Errorf("delete basket for user %s: %w: %w", userName, repository.ErrQueryFailed, err)
	}
	return res.DeletedCount > 0, nil
}
