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

type MongoAccountRepository struct {
	col *mongo.Collection
}

func NewMongoAccountRepository(db *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{col: db.Collection("accounts")}
}

func (r *MongoAccountRepository) Save(ctx context.Context, account *models.Account) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": account.ID},
		account,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to save account", err)
	}
	return nil
}

func (r *MongoAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var account models.Account
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewDomainError(utils.KindAccountNotFound, "account not found: "+id)
	}
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to load account", err)
	}
	return &account, nil
}

func (r *MongoAccountRepository) FindAll(ctx context.Context) ([]*models.Account, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoAccountRepository) FindEnabled(ctx context.Context) ([]*models.Account, error) {
	return r.find(ctx, bson.M{"enabled": true})
}

func (r *MongoAccountRepository) find(ctx context.Context, filter bson.M) ([]*models.Account, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to list accounts", err)
	}
	defer cursor.Close(ctx)

	var accounts []*models.Account
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to decode accounts", err)
	}
	return accounts, nil
}

func (r *MongoAccountRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	result, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to delete account", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewDomainError(utils.KindAccountNotFound, "account not found: "+id)
	}
	return nil
}

// RawCredentialDocs reads stored cookie payloads without going through the
// model, so values that predate encryption come back as-is.
func (r *MongoAccountRepository) RawCredentialDocs(ctx context.Context) ([]RawCredentialDoc, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := r.col.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1, "credentials.cookies": 1, "credentials.api_user": 1}))
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindRepository, "failed to read credential docs", err)
	}
	defer cursor.Close(ctx)

	var docs []RawCredentialDoc
	for cursor.Next(ctx) {
		var raw struct {
			ID          string `bson:"_id"`
			Credentials struct {
				Cookies map[string]string `bson:"cookies"`
				APIUser string            `bson:"api_user"`
			} `bson:"credentials"`
		}
		if err := cursor.Decode(&raw); err != nil {
			return nil, utils.WrapDomainError(utils.KindRepository, "failed to decode credential doc", err)
		}
		docs = append(docs, RawCredentialDoc{AccountID: raw.ID, Cookies: raw.Credentials.Cookies, APIUser: raw.Credentials.APIUser})
	}
	return docs, nil
}

func (r *MongoAccountRepository) UpdateRawCredentials(ctx context.Context, accountID string, cookies map[string]string, apiUser string) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{"$set": bson.M{"credentials.cookies": cookies, "credentials.api_user": apiUser}},
	)
	if err != nil {
		return utils.WrapDomainError(utils.KindRepository, "failed to update credentials", err)
	}
	return nil
}
