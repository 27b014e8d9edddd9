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

// MongoSessionRepository implements domain.SessionRepository using MongoDB.
// Sessions are soft-revoked and never deleted, so there is no TTL index.
type MongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new MongoDB session repository
func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	collection := db.Collection("auth_sessions")

	// Create indexes for efficient queries
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Token lookups are scoped to a device; duplicates are tolerated
		{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "token", Value: 1}}},
		{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}}},
		// Expiry sweep
		{Keys: bson.D{{Key: "revoked_at", Value: 1}, {Key: "expires_at", Value: 1}}},
	})

	return &MongoSessionRepository{
		collection: collection,
	}
}

// Create stores a new session
func (r *MongoSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	now := time.Now().UTC()
	objID := primitive.NewObjectID()

	doc := bson.M{
		"_id":        objID,
		"account_id": session.AccountID,
		"device_id":  session.DeviceID,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"revoked_at": nil,
		"created_at": now,
		"updated_at": now,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	session.ID = objID.Hex()
	session.CreatedAt = now
	session.UpdatedAt = now
	return nil
}

// FindByToken returns all sessions on the given devices matching token
func (r *MongoSessionRepository) FindByToken(ctx context.Context, deviceIDs []string, token string) ([]*domain.Session, error) {
	if len(deviceIDs) == 0 {
		return []*domain.Session{}, nil
	}
	return r.find(ctx, bson.M{
		"device_id": bson.M{"$in": deviceIDs},
		"token":     token,
	})
}

// FindActive returns unrevoked sessions for a device, expired ones included
func (r *MongoSessionRepository) FindActive(ctx context.Context, deviceID string) ([]*domain.Session, error) {
	return r.find(ctx, bson.M{
		"device_id":  deviceID,
		"revoked_at": nil,
	})
}

// FindLatest returns the most recently issued session for a device
func (r *MongoSessionRepository) FindLatest(ctx context.Context, deviceID string) (*domain.Session, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var session domain.Session
	if err := r.collection.FindOne(ctx, bson.M{"device_id": deviceID}, opts).Decode(&session); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return &session, nil
}

// Revoke transitions an unrevoked session to revoked. The filter on
// revoked_at makes the transition happen at most once.
func (r *MongoSessionRepository) Revoke(ctx context.Context, session *domain.Session, reason domain.RevokedReason) error {
	objID, err := primitive.ObjectIDFromHex(session.ID)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "revoked_at": nil},
		bson.M{"$set": bson.M{
			"revoked_at":     now,
			"revoked_reason": reason,
			"updated_at":     now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrAlreadyRevoked
	}

	session.RevokedAt = &now
	session.RevokedReason = reason
	session.UpdatedAt = now
	return nil
}

// CountExpired counts unrevoked sessions past their expiry
func (r *MongoSessionRepository) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, expiredFilter(now))
	if err != nil {
		return 0, fmt.Errorf("failed to count expired sessions: %w", err)
	}
	return n, nil
}

// RevokeExpired marks every unrevoked session past its expiry as revoked(expired)
func (r *MongoSessionRepository) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		expiredFilter(now),
		bson.M{"$set": bson.M{
			"revoked_at":     now,
			"revoked_reason": domain.RevokedExpired,
			"updated_at":     now,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke expired sessions: %w", err)
	}
	return result.ModifiedCount, nil
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{"revoked_at": nil, "expires_at": bson.M{"$lte": now}}
}

func (r *MongoSessionRepository) find(ctx context.Context, filter bson.M) ([]*domain.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []*domain.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}
