package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliowatt/heliowatt/domain"
)

// The domain type hides secrets from JSON; the cache wire form must not, or a
// cached credential would come back unusable.
func TestCachedCredentialPreservesSecrets(t *testing.T) {
	expiry := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	original := &domain.Credential{
		ID:            "c1",
		UserID:        "u1",
		Provider:      domain.ProviderWallbox,
		AccessSecret:  "access-jwt",
		RefreshSecret: "refresh-1",
		ExpiresAt:     &expiry,
		Extra:         map[string]string{domain.ExtraSiteID: "7"},
	}

	raw, err := json.Marshal(toCached(original))
	require.NoError(t, err)

	var cc cachedCredential
	require.NoError(t, json.Unmarshal(raw, &cc))
	restored := cc.toDomain()

	assert.Equal(t, "access-jwt", restored.AccessSecret)
	assert.Equal(t, "refresh-1", restored.RefreshSecret)
	assert.Equal(t, original.UserID, restored.UserID)
	assert.Equal(t, original.Provider, restored.Provider)
	require.NotNil(t, restored.ExpiresAt)
	assert.True(t, restored.ExpiresAt.Equal(expiry))
	assert.Equal(t, "7", restored.Extra[domain.ExtraSiteID])
}

// The domain type's own JSON form must keep hiding secrets, since it is what
// API responses serialize.
func TestDomainCredentialJSONHidesSecrets(t *testing.T) {
	raw, err := json.Marshal(&domain.Credential{
		UserID:        "u1",
		Provider:      domain.ProviderTesla,
		AccessSecret:  "access-1",
		RefreshSecret: "refresh-1",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-1")
	assert.NotContains(t, string(raw), "refresh-1")
}
