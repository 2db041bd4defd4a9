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

type MongoSessionRepository struct {
	col *mongo.Collection
}

func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{col: db.Collection("sessions")}
}

// Save upserts by account id, so an account never has more than one session.
func (r *MongoSessionRepository) Save(ctx context.Context, session *models.Session) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": session.AccountID},
		session,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to save session", err)
	}
	return nil
}

func (r *MongoSessionRepository) FindByAccountID(ctx context.Context, accountID string) (*models.Session, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var session models.Session
	err := r.col.FindOne(ctx, bson.M{"_id": accountID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load session", err)
	}
	return &session, nil
}

func (r *MongoSessionRepository) Delete(ctx context.Context, accountID string) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": accountID}); err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to delete session", err)
	}
	return nil
}
