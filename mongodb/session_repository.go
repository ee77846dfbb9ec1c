package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// SessionRepository implements domain.SessionRepository on MongoDB. Sessions
// are written by the identity layer; this core only resolves tokens to users.
type SessionRepository struct {
	coll *mongo.Collection
}

// NewSessionRepository creates the repository and ensures its indexes,
// including a TTL index that reaps expired sessions.
func NewSessionRepository(ctx context.Context, db *mongo.Database) (domain.SessionRepository, error) {
	repo := &SessionRepository{coll: db.Collection(SessionsCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create session indexes: %w", err)
	}
	return repo, nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	err := r.coll.FindOne(ctx, bson.M{
		"token":      token,
		"is_revoked": bson.M{"$ne": true},
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, herrors.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}
