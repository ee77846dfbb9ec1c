package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// CredentialRepository implements domain.CredentialRepository on MongoDB.
// The unique compound index on (user_id, provider) enforces the single
// credential per pair invariant at the storage layer.
type CredentialRepository struct {
	coll *mongo.Collection
}

// NewCredentialRepository creates the repository and ensures its indexes.
func NewCredentialRepository(ctx context.Context, db *mongo.Database) (domain.CredentialRepository, error) {
	repo := &CredentialRepository{coll: db.Collection(CredentialsCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create credential indexes: %w", err)
	}
	return repo, nil
}

func (r *CredentialRepository) Get(ctx context.Context, userID, provider string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID, "provider": provider}).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, herrors.ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	filter := bson.M{"user_id": cred.UserID, "provider": cred.Provider}
	update := bson.M{
		"$set": bson.M{
			"access_secret":  cred.AccessSecret,
			"refresh_secret": cred.RefreshSecret,
			"expires_at":     cred.ExpiresAt,
			"extra":          cred.Extra,
			"updated_at":     cred.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"user_id":    cred.UserID,
			"provider":   cred.Provider,
			"created_at": cred.CreatedAt,
		},
	}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := r.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		log.Error().Err(err).Str("provider", cred.Provider).Msg("failed to upsert credential")
		return err
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, userID, provider string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"user_id": userID, "provider": provider})
	return err
}

func (r *CredentialRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
