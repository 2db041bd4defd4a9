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

type MongoNotificationChannelRepository struct {
	col *mongo.Collection
}

func NewMongoNotificationChannelRepository(db *mongo.Database) *MongoNotificationChannelRepository {
	return &MongoNotificationChannelRepository{col: db.Collection("notification_channels")}
}

func (r *MongoNotificationChannelRepository) Save(ctx context.Context, channel *models.NotificationChannel) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": channel.ID},
		channel,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to save notification channel", err)
	}
	return nil
}

func (r *MongoNotificationChannelRepository) FindByID(ctx context.Context, id string) (*models.NotificationChannel, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var channel models.NotificationChannel
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&channel)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewDomainError(utils.KindValidation, "notification channel not found: "+id)
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load notification channel", err)
	}
	return &channel, nil
}

func (r *MongoNotificationChannelRepository) FindAll(ctx context.Context) ([]*models.NotificationChannel, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoNotificationChannelRepository) FindEnabled(ctx context.Context) ([]*models.NotificationChannel, error) {
	return r.find(ctx, bson.M{"enabled": true})
}

func (r *MongoNotificationChannelRepository) find(ctx context.Context, filter bson.M) ([]*models.NotificationChannel, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to list notification channels", err)
	}
	defer cursor.Close(ctx)

	var channels []*models.NotificationChannel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to decode notification channels", err)
	}
	return channels, nil
}

func (r *MongoNotificationChannelRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	result, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to delete notification channel", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewDomainError(utils.KindValidation, "notification channel not found: "+id)
	}
	return nil
}
