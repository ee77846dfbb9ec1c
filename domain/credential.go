package domain

import "time"

// Provider identifiers for the four integrated vendors.
const (
	ProviderTesla     = "tesla"
	ProviderEnphase   = "enphase"
	ProviderSolarEdge = "solaredge"
	ProviderWallbox   = "wallbox"
)

// Credential holds the secret material letting this service call a vendor's API
// on a user's behalf. There is at most one credential per (user, provider) pair;
// writes use upsert semantics keyed on that pair.
type Credential struct {
	ID            string            `bson:"_id,omitempty" json:"id"`
	UserID        string            `bson:"user_id" json:"user_id"`
	Provider      string            `bson:"provider" json:"provider"`
	AccessSecret  string            `bson:"access_secret" json:"-"`
	RefreshSecret string            `bson:"refresh_secret,omitempty" json:"-"`
	// ExpiresAt is nil for non-expiring credentials (API-key schemes).
	ExpiresAt *time.Time        `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Extra     map[string]string `bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at" json:"updated_at"`
}

// Keys used in Credential.Extra by the API-key vendor.
const (
	ExtraSiteID    = "site_id"
	ExtraSiteName  = "site_name"
	ExtraPeakPower = "peak_power_kw"
)

// ExpiresWithin reports whether the credential expires within d.
// Non-expiring credentials never do.
func (c *Credential) ExpiresWithin(d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(*c.ExpiresAt) <= d
}
