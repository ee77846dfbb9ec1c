package domain

import "context"

// CredentialRepository is the durable per-(user, provider) credential store.
type CredentialRepository interface {
	// Get returns the credential for the pair, or ErrNotConnected.
	Get(ctx context.Context, userID, provider string) (*Credential, error)

	// Upsert writes the credential keyed on (user_id, provider), replacing any
	// prior row. Both secrets are replaced on refresh since vendors may rotate
	// the refresh secret too.
	Upsert(ctx context.Context, cred *Credential) error

	// Delete removes the credential for the pair. Deleting an absent row is
	// not an error.
	Delete(ctx context.Context, userID, provider string) error

	// DeleteAllForUser removes every credential of a user (account deletion).
	DeleteAllForUser(ctx context.Context, userID string) error
}

// DeviceRepository is the durable device claim registry. Claim must be an
// atomic check-and-insert backed by a uniqueness constraint on
// (provider, device_id), not a read-then-write pair.
type DeviceRepository interface {
	ListByUser(ctx context.Context, userID, provider string) ([]*ConnectedDevice, error)

	// FindClaims returns deviceID -> owning userID for the subset of deviceIDs
	// that are currently claimed.
	FindClaims(ctx context.Context, provider string, deviceIDs []string) (map[string]string, error)

	// Claim inserts the device row; ErrAlreadyClaimed if another account holds it.
	Claim(ctx context.Context, device *ConnectedDevice) error

	// Release removes the caller's claim. ErrNotOwner if another account holds
	// the claim; releasing an unclaimed device is a no-op.
	Release(ctx context.Context, userID, provider, deviceID string) error
}

// SessionRepository resolves caller identity from a bearer session token.
type SessionRepository interface {
	// GetByToken returns the live session for the token, or ErrUnauthenticated
	// when the token is unknown, revoked or expired.
	GetByToken(ctx context.Context, token string) (*Session, error)
}
