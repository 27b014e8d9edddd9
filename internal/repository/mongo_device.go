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

// MongoDeviceRepository implements domain.DeviceRepository
type MongoDeviceRepository struct {
	collection *mongo.Collection
}

func NewMongoDeviceRepository(db *mongo.Database) *MongoDeviceRepository {
	coll := db.Collection("devices")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// One record per logical device per account
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "identifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Refresh looks devices up by identifier alone
		{Keys: bson.D{{Key: "identifier", Value: 1}}},
	})

	return &MongoDeviceRepository{
		collection: coll,
	}
}

func (r *MongoDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	now := time.Now().UTC()
	objID := primitive.NewObjectID()

	if device.Hosts == nil {
		device.Hosts = []domain.HostEntry{}
	}
	if device.Agents == nil {
		device.Agents = []domain.AgentEntry{}
	}

	doc := bson.M{
		"_id":        objID,
		"account_id": device.AccountID,
		"identifier": device.Identifier,
		"platform":   device.Platform,
		"hosts":      device.Hosts,
		"agents":     device.Agents,
		"created_at": now,
		"updated_at": now,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateDevice
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	device.ID = objID.Hex()
	device.CreatedAt = now
	device.UpdatedAt = now
	return nil
}

func (r *MongoDeviceRepository) Find(ctx context.Context, accountID, identifier string) (*domain.Device, error) {
	return r.findOne(ctx, bson.M{"account_id": accountID, "identifier": identifier})
}

func (r *MongoDeviceRepository) FindByID(ctx context.Context, id string) (*domain.Device, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": objID})
}

func (r *MongoDeviceRepository) FindByIdentifier(ctx context.Context, identifier string) ([]*domain.Device, error) {
	return r.findMany(ctx, bson.M{"identifier": identifier})
}

func (r *MongoDeviceRepository) FindByAccount(ctx context.Context, accountID string) ([]*domain.Device, error) {
	return r.findMany(ctx, bson.M{"account_id": accountID})
}

// AppendObservation pushes only the history entries that differ from the tail
func (r *MongoDeviceRepository) AppendObservation(ctx context.Context, device *domain.Device, address, agent string) error {
	objID, err := primitive.ObjectIDFromHex(device.ID)
	if err != nil {
		return fmt.Errorf("invalid device id: %w", err)
	}

	host, ag := device.Observe(address, agent, time.Now().UTC())
	if host == nil && ag == nil {
		return nil
	}

	push := bson.M{}
	if host != nil {
		push["hosts"] = host
	}
	if ag != nil {
		push["agents"] = ag
	}

	update := bson.M{
		"$push": push,
		"$set":  bson.M{"updated_at": device.UpdatedAt},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to append device observation: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoDeviceRepository) findOne(ctx context.Context, filter bson.M) (*domain.Device, error) {
	var device domain.Device
	if err := r.collection.FindOne(ctx, filter).Decode(&device); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

func (r *MongoDeviceRepository) findMany(ctx context.Context, filter bson.M) ([]*domain.Device, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}
	defer cursor.Close(ctx)

	devices := []*domain.Device{}
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}
