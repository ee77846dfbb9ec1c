package domain

import "context"

// SiteSummary is the result of probing the API-key vendor's site details
// endpoint before persisting a credential.
type SiteSummary struct {
	SiteID      int64   `json:"site_id"`
	Name        string  `json:"name"`
	PeakPowerKW float64 `json:"peak_power_kw"`
	Status      string  `json:"status,omitempty"`
}

// Provider is the capability interface every vendor adapter implements.
// Callers dispatch through it and never branch on vendor identity; operations
// a vendor's protocol does not have return ErrUnsupportedOperation.
//
// Every method crossing the network takes a context and is subject to the
// adapter's bounded HTTP timeout. Adapters never retry; retry policy belongs
// to the caller.
type Provider interface {
	Name() string

	// BeginAuthorization builds the vendor authorization URL the user is sent
	// to. OAuth vendors only.
	BeginAuthorization(ctx context.Context, userID, redirectURI string) (string, error)

	// CompleteAuthorization exchanges an authorization code for a credential.
	// The returned credential carries secrets and expiry but no user id; the
	// caller stamps ownership before persisting.
	CompleteAuthorization(ctx context.Context, code, redirectURI string) (*Credential, error)

	// RefreshCredential exchanges the refresh secret for a new access/refresh
	// pair. Vendors may rotate the refresh secret; adapters carry the old one
	// forward when the vendor omits it.
	RefreshCredential(ctx context.Context, cred *Credential) (*Credential, error)

	// ListDevices enumerates the hardware reachable with the credential.
	ListDevices(ctx context.Context, cred *Credential) ([]DeviceDescriptor, error)

	// FetchTelemetry reads the live telemetry units of one claimed device.
	FetchTelemetry(ctx context.Context, cred *Credential, device *ConnectedDevice) ([]TelemetryUnit, error)
}

// PasswordAuthenticator is implemented by vendors whose flow starts from a
// username/password pair instead of an authorization redirect.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Credential, error)
}

// APIKeyAuthenticator is implemented by vendors using a static API key plus a
// numeric site identifier. The probe is read-only; the caller persists the
// credential only on success.
type APIKeyAuthenticator interface {
	ValidateAPIKey(ctx context.Context, apiKey string, siteID int64) (*SiteSummary, error)
}

// ProviderResolver maps a provider name to its adapter.
type ProviderResolver interface {
	Get(name string) (Provider, error)
}
