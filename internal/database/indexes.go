package database

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes each collection needs for the
// query patterns the repositories use. Safe to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	accounts := db.Collection("accounts")
	if _, err := accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "provider_id", Value: 1}}},
		{Keys: bson.D{{Key: "enabled", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}); err != nil {
		return err
	}

	providers := db.Collection("providers")
	if _, err := providers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "domain", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}); err != nil {
		return err
	}

	history := db.Collection("balance_history")
	if _, err := history.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "recorded_at", Value: -1}}},
	}); err != nil {
		return err
	}

	jobs := db.Collection("checkin_jobs")
	if _, err := jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		return err
	}

	channels := db.Collection("notification_channels")
	if _, err := channels.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "enabled", Value: 1}}},
	}); err != nil {
		return err
	}

	return nil
}
