package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"checkin-keeper/models"
	"checkin-keeper/utils"
)

type MongoProviderRepository struct {
	col *mongo.Collection
}

func NewMongoProviderRepository(db *mongo.Database) *MongoProviderRepository {
	return &MongoProviderRepository{col: db.Collection("providers")}
}

func (r *MongoProviderRepository) Save(ctx context.Context, provider *models.Provider) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": provider.ID},
		provider,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to save provider", err)
	}
	return nil
}

func (r *MongoProviderRepository) FindByID(ctx context.Context, id string) (*models.Provider, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var provider models.Provider
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&provider)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewDomainError(utils.KindProviderNotFound, "provider not found: "+id)
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load provider", err)
	}
	return &provider, nil
}

func (r *MongoProviderRepository) FindAll(ctx context.Context) ([]*models.Provider, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to list providers", err)
	}
	defer cursor.Close(ctx)

	var providers []*models.Provider
	if err := cursor.All(ctx, &providers); err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to decode providers", err)
	}
	return providers, nil
}

func (r *MongoProviderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	result, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to delete provider", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewDomainError(utils.KindProviderNotFound, "provider not found: "+id)
	}
	return nil
}
