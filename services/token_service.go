package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/heliowatt/heliowatt/cache"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
	"github.com/heliowatt/heliowatt/log"
)

// ExpirySkew is the safety margin before actual expiry at which a credential
// is proactively refreshed. A returned access secret is never within this
// window of expiring.
const ExpirySkew = 5 * time.Minute

// TokenService is the token lifecycle manager: it returns currently valid
// credentials, refreshing stale ones transparently. At most one refresh is in
// flight per (user, provider) pair — vendors commonly invalidate the prior
// refresh secret on use, so a second concurrent refresh would fail and burn
// rate limit for nothing.
type TokenService struct {
	creds     domain.CredentialRepository
	providers domain.ProviderResolver
	cache     cache.CredentialCache
	flight    singleflight.Group
	logger    log.Logger
}

// NewTokenService creates the token lifecycle manager.
func NewTokenService(creds domain.CredentialRepository, providers domain.ProviderResolver, credCache cache.CredentialCache, logger log.Logger) *TokenService {
	return &TokenService{
		creds:     creds,
		providers: providers,
		cache:     credCache,
		logger:    logger,
	}
}

// GetValidCredential returns a credential whose access secret is valid for at
// least ExpirySkew. Returns ErrNotConnected when no credential exists and
// ErrNeedsReauthorization when the stored credential cannot be refreshed —
// the latter is terminal: the user must repeat the authorization flow.
func (s *TokenService) GetValidCredential(ctx context.Context, userID, provider string) (*domain.Credential, error) {
	if cred, ok := s.cache.Get(ctx, userID, provider); ok && !cred.ExpiresWithin(ExpirySkew) {
		return cred, nil
	}

	cred, err := s.creds.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if !cred.ExpiresWithin(ExpirySkew) {
		s.cacheCredential(ctx, cred)
		return cred, nil
	}

	// Near expiry: refresh, coalescing concurrent callers onto one vendor call.
	result, err, _ := s.flight.Do(cache.Key(userID, provider), func() (interface{}, error) {
		return s.refresh(ctx, userID, provider)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Credential), nil
}

// refresh runs inside the singleflight group. It re-reads the store first:
// a caller that waited on the flight lock may find the credential already
// rotated by the flight it waited on.
func (s *TokenService) refresh(ctx context.Context, userID, provider string) (*domain.Credential, error) {
	cred, err := s.creds.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if !cred.ExpiresWithin(ExpirySkew) {
		s.cacheCredential(ctx, cred)
		return cred, nil
	}

	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	refreshed, err := adapter.RefreshCredential(ctx, cred)
	if err != nil {
		if errors.Is(err, herrors.ErrUnsupportedOperation) || errors.Is(err, herrors.ErrProviderNotConfigured) {
			return nil, err
		}
		s.logger.Warn(ctx, "credential refresh failed, reauthorization required", map[string]interface{}{
			"user_id":  userID,
			"provider": provider,
			"cause":    err.Error(),
		})
		return nil, herrors.ErrNeedsReauthorization
	}

	// Vendors may rotate the refresh secret; persist the whole new pair.
	refreshed.UserID = userID
	refreshed.ID = cred.ID
	refreshed.CreatedAt = cred.CreatedAt
	if refreshed.Extra == nil {
		refreshed.Extra = cred.Extra
	}
	if err := s.creds.Upsert(ctx, refreshed); err != nil {
		return nil, err
	}
	s.cacheCredential(ctx, refreshed)

	s.logger.Info(ctx, "credential refreshed", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	return refreshed, nil
}

// cacheCredential caches the credential until its skew horizon, or for a
// bounded period when it never expires.
func (s *TokenService) cacheCredential(ctx context.Context, cred *domain.Credential) {
	ttl := cache.NonExpiringTTL
	if cred.ExpiresAt != nil {
		ttl = time.Until(*cred.ExpiresAt) - ExpirySkew
	}
	s.cache.Set(ctx, cred, ttl)
}

// StoreCredential stamps ownership and persists a credential obtained from an
// authorization, validation or password flow, replacing any prior credential
// for the pair.
func (s *TokenService) StoreCredential(ctx context.Context, userID string, cred *domain.Credential) error {
	cred.UserID = userID
	if err := s.creds.Upsert(ctx, cred); err != nil {
		return err
	}
	s.cacheCredential(ctx, cred)
	return nil
}

// Connected reports whether a credential exists for the pair.
func (s *TokenService) Connected(ctx context.Context, userID, provider string) (bool, error) {
	_, err := s.creds.Get(ctx, userID, provider)
	if errors.Is(err, herrors.ErrNotConnected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Disconnect removes the stored credential and evicts the cache.
func (s *TokenService) Disconnect(ctx context.Context, userID, provider string) error {
	if err := s.creds.Delete(ctx, userID, provider); err != nil {
		return err
	}
	s.cache.Delete(ctx, userID, provider)
	return nil
}
