package domain

import "time"

// Session is an authenticated caller session. Sessions are minted by the
// identity layer (an external collaborator); this core only reads them to
// resolve the caller's user id.
type Session struct {
	ID         string    `bson:"_id,omitempty"`
	UserID     string    `bson:"user_id"`
	Token      string    `bson:"token"`
	ExpiresAt  time.Time `bson:"expires_at"`
	CreatedAt  time.Time `bson:"created_at"`
	LastUsedAt time.Time `bson:"last_used_at,omitempty"`
	IsRevoked  bool      `bson:"is_revoked,omitempty"`
}
