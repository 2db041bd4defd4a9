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

type MongoCheckInJobRepository struct {
	col *mongo.Collection
}

func NewMongoCheckInJobRepository(db *mongo.Database) *MongoCheckInJobRepository {
	return &MongoCheckInJobRepository{col: db.Collection("checkin_jobs")}
}

func (r *MongoCheckInJobRepository) Save(ctx context.Context, job *models.CheckInJob) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": job.ID},
		job,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to save check-in job", err)
	}
	return nil
}

func (r *MongoCheckInJobRepository) FindByID(ctx context.Context, id string) (*models.CheckInJob, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var job models.CheckInJob
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewDomainError(utils.KindValidation, "check-in job not found: "+id)
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load check-in job", err)
	}
	return &job, nil
}

func (r *MongoCheckInJobRepository) FindByAccountID(ctx context.Context, accountID string, limit int) ([]*models.CheckInJob, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.col.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to list check-in jobs", err)
	}
	defer cursor.Close(ctx)

	var jobs []*models.CheckInJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to decode check-in jobs", err)
	}
	return jobs, nil
}
