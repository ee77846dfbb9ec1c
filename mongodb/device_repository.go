package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// DeviceRepository implements domain.DeviceRepository on MongoDB. The unique
// compound index on (provider, device_id) makes Claim an atomic
// check-and-insert: the race between two users claiming the same device is
// closed by the index, not by application logic.
type DeviceRepository struct {
	coll *mongo.Collection
}

// NewDeviceRepository creates the repository and ensures its indexes.
func NewDeviceRepository(ctx context.Context, db *mongo.Database) (domain.DeviceRepository, error) {
	repo := &DeviceRepository{coll: db.Collection(DevicesCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "device_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}},
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create device indexes: %w", err)
	}
	return repo, nil
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID, provider string) ([]*domain.ConnectedDevice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "claimed_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID, "provider": provider}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var devices []*domain.ConnectedDevice
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *DeviceRepository) FindClaims(ctx context.Context, provider string, deviceIDs []string) (map[string]string, error) {
	if len(deviceIDs) == 0 {
		return map[string]string{}, nil
	}
	cursor, err := r.coll.Find(ctx, bson.M{
		"provider":  provider,
		"device_id": bson.M{"$in": deviceIDs},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	claims := make(map[string]string)
	for cursor.Next(ctx) {
		var device domain.ConnectedDevice
		if err := cursor.Decode(&device); err != nil {
			return nil, err
		}
		claims[device.DeviceID] = device.UserID
	}
	return claims, cursor.Err()
}

func (r *DeviceRepository) Claim(ctx context.Context, device *domain.ConnectedDevice) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	if device.ClaimedAt.IsZero() {
		device.ClaimedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, device)
	if mongo.IsDuplicateKeyError(err) {
		return herrors.ErrAlreadyClaimed
	}
	return err
}

func (r *DeviceRepository) Release(ctx context.Context, userID, provider, deviceID string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{
		"user_id":   userID,
		"provider":  provider,
		"device_id": deviceID,
	})
	if err != nil {
		return err
	}
	if result.DeletedCount > 0 {
		return nil
	}
	// Nothing deleted: either unclaimed (no-op) or claimed by someone else.
	err = r.coll.FindOne(ctx, bson.M{"provider": provider, "device_id": deviceID}).Err()
	if err == nil {
		return herrors.ErrNotOwner
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}
