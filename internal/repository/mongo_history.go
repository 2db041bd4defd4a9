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

type MongoBalanceHistoryRepository struct {
	col *mongo.Collection
}

func NewMongoBalanceHistoryRepository(db *mongo.Database) *MongoBalanceHistoryRepository {
	return &MongoBalanceHistoryRepository{col: db.Collection("balance_history")}
}

// Save upserts by the deterministic daily id, so repeated fetches on the
// same day overwrite the row instead of appending.
func (r *MongoBalanceHistoryRepository) Save(ctx context.Context, record *models.BalanceHistoryRecord) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": record.ID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to save balance history", err)
	}
	return nil
}

func (r *MongoBalanceHistoryRepository) FindByAccountID(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistoryRecord, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.col.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to list balance history", err)
	}
	defer cursor.Close(ctx)

	var records []*models.BalanceHistoryRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to decode balance history", err)
	}
	return records, nil
}

func (r *MongoBalanceHistoryRepository) FindByAccountIDOnDate(ctx context.Context, accountID, date string) (*models.BalanceHistoryRecord, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var record models.BalanceHistoryRecord
	err := r.col.FindOne(ctx, bson.M{"account_id": accountID, "date": date}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load balance history", err)
	}
	return &record, nil
}

func (r *MongoBalanceHistoryRepository) FindLatestByAccountID(ctx context.Context, accountID string) (*models.BalanceHistoryRecord, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "recorded_at", Value: -1}})

	var record models.BalanceHistoryRecord
	err := r.col.FindOne(ctx, bson.M{"account_id": accountID}, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load balance history", err)
	}
	return &record, nil
}
