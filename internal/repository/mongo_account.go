package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/deviceauth/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAccountRepository implements domain.AccountRepository
type MongoAccountRepository struct {
	collection *mongo.Collection
}

func NewMongoAccountRepository(db *mongo.Database) *MongoAccountRepository {
	coll := db.Collection("accounts")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Username uniqueness is enforced here, not in the service
	_, _ = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &MongoAccountRepository{
		collection: coll,
	}
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
	objID := primitive.NewObjectID()

	doc := bson.M{
		"_id":           objID,
		"username":      account.Username,
		"password_hash": account.PasswordHash,
		"created_at":    now,
		"updated_at":    now,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.ID = objID.Hex()
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

func (r *MongoAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var account domain.Account
	if err := r.collection.FindOne(ctx, bson.M{"username": username}).Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return &account, nil
}

func (r *MongoAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// a malformed id cannot name an existing account
		return nil, domain.ErrNotFound
	}

	var account domain.Account
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}
