package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/heliowatt/heliowatt/cache"
	"github.com/heliowatt/heliowatt/domain"
)

// CredentialCache implements cache.CredentialCache on redis, for deployments
// running more than one instance. Values are JSON; redis handles TTL expiry.
type CredentialCache struct {
	client *redis.Client
	prefix string
}

// NewCredentialCache creates a redis-backed credential cache.
func NewCredentialCache(client *redis.Client, prefix string) *CredentialCache {
	return &CredentialCache{client: client, prefix: prefix}
}

// cachedCredential is the wire form. domain.Credential hides its secrets from
// JSON on purpose; the cache needs them, so it has its own shape.
type cachedCredential struct {
	ID            string            `json:"id,omitempty"`
	UserID        string            `json:"user_id"`
	Provider      string            `json:"provider"`
	AccessSecret  string            `json:"access_secret"`
	RefreshSecret string            `json:"refresh_secret,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toCached(c *domain.Credential) *cachedCredential {
	return &cachedCredential{
		ID: c.ID, UserID: c.UserID, Provider: c.Provider,
		AccessSecret: c.AccessSecret, RefreshSecret: c.RefreshSecret,
		ExpiresAt: c.ExpiresAt, Extra: c.Extra,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (cc *cachedCredential) toDomain() *domain.Credential {
	return &domain.Credential{
		ID: cc.ID, UserID: cc.UserID, Provider: cc.Provider,
		AccessSecret: cc.AccessSecret, RefreshSecret: cc.RefreshSecret,
		ExpiresAt: cc.ExpiresAt, Extra: cc.Extra,
		CreatedAt: cc.CreatedAt, UpdatedAt: cc.UpdatedAt,
	}
}

func (r *CredentialCache) redisKey(userID, provider string) string {
	return fmt.Sprintf("%s:cred:%s", r.prefix, cache.Key(userID, provider))
}

func (r *CredentialCache) Get(ctx context.Context, userID, provider string) (*domain.Credential, bool) {
	raw, err := r.client.Get(ctx, r.redisKey(userID, provider)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("redis credential cache read failed")
		}
		return nil, false
	}
	var cc cachedCredential
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.Warn().Err(err).Msg("redis credential cache entry malformed, dropping")
		r.Delete(ctx, userID, provider)
		return nil, false
	}
	return cc.toDomain(), true
}

func (r *CredentialCache) Set(ctx context.Context, cred *domain.Credential, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(toCached(cred))
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal credential for cache")
		return
	}
	if err := r.client.Set(ctx, r.redisKey(cred.UserID, cred.Provider), raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("redis credential cache write failed")
	}
}

func (r *CredentialCache) Delete(ctx context.Context, userID, provider string) {
	if err := r.client.Del(ctx, r.redisKey(userID, provider)).Err(); err != nil {
		log.Warn().Err(err).Msg("redis credential cache delete failed")
	}
}
