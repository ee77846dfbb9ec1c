package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// SessionRepository is an in-memory domain.SessionRepository with a Put for
// seeding dev and test sessions.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewSessionRepository creates an empty in-memory session store.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*domain.Session)}
}

// Put stores a session keyed by its token.
func (r *SessionRepository) Put(session *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *session
	r.sessions[session.Token] = &clone
}

func (r *SessionRepository) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[token]
	if !ok || session.IsRevoked || time.Now().After(session.ExpiresAt) {
		return nil, herrors.ErrUnauthenticated
	}
	clone := *session
	return &clone, nil
}
