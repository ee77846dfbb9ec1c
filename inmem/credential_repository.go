// Package inmem provides in-memory repository implementations used by tests
// and the dev storage backend. Semantics match the mongodb implementations,
// including the uniqueness guarantees.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// CredentialRepository is an in-memory domain.CredentialRepository.
type CredentialRepository struct {
	mu    sync.RWMutex
	creds map[string]*domain.Credential
}

// NewCredentialRepository creates an empty in-memory credential store.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{creds: make(map[string]*domain.Credential)}
}

func credKey(userID, provider string) string {
	return userID + "/" + provider
}

func (r *CredentialRepository) Get(_ context.Context, userID, provider string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[credKey(userID, provider)]
	if !ok {
		return nil, herrors.ErrNotConnected
	}
	clone := *cred
	return &clone, nil
}

func (r *CredentialRepository) Upsert(_ context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	clone := *cred
	if existing, ok := r.creds[credKey(cred.UserID, cred.Provider)]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	r.creds[credKey(cred.UserID, cred.Provider)] = &clone
	return nil
}

func (r *CredentialRepository) Delete(_ context.Context, userID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, credKey(userID, provider))
	return nil
}

func (r *CredentialRepository) DeleteAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, cred := range r.creds {
		if cred.UserID == userID {
			delete(r.creds, key)
		}
	}
	return nil
}
