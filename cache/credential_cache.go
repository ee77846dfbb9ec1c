package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/heliowatt/heliowatt/domain"
)

// NonExpiringTTL bounds cache residency for credentials without an expiry
// (API-key vendors), so a disconnect on another instance converges.
const NonExpiringTTL = time.Hour

// CredentialCache is a read-through cache in front of the credential store.
// Entries are keyed by (user, provider) and must be evicted on every refresh
// and disconnect so a stale access secret is never returned.
type CredentialCache interface {
	Get(ctx context.Context, userID, provider string) (*domain.Credential, bool)
	Set(ctx context.Context, cred *domain.Credential, ttl time.Duration)
	Delete(ctx context.Context, userID, provider string)
}

// Key builds the cache key for a (user, provider) pair.
func Key(userID, provider string) string {
	return fmt.Sprintf("%s/%s", userID, provider)
}

// MemoryCredentialCache is the in-process implementation backed by ttlcache.
type MemoryCredentialCache struct {
	cache *ttlcache.Cache[string, *domain.Credential]
}

// NewMemoryCredentialCache creates the cache and starts its expiry loop.
func NewMemoryCredentialCache() *MemoryCredentialCache {
	c := ttlcache.New[string, *domain.Credential]()
	go c.Start()
	return &MemoryCredentialCache{cache: c}
}

func (m *MemoryCredentialCache) Get(_ context.Context, userID, provider string) (*domain.Credential, bool) {
	item := m.cache.Get(Key(userID, provider))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *MemoryCredentialCache) Set(_ context.Context, cred *domain.Credential, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.cache.Set(Key(cred.UserID, cred.Provider), cred, ttl)
}

func (m *MemoryCredentialCache) Delete(_ context.Context, userID, provider string) {
	m.cache.Delete(Key(userID, provider))
}

// Stop terminates the expiry loop.
func (m *MemoryCredentialCache) Stop() {
	m.cache.Stop()
}
