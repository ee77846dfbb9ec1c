package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the integration core. Callers branch on these with
// errors.Is; the HTTP layer maps them onto status codes.
var (
	// ErrUnauthenticated means the caller's own identity is missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotConnected means no credential exists for the (user, provider) pair.
	// The caller should present the authorization flow.
	ErrNotConnected = errors.New("provider not connected")

	// ErrNeedsReauthorization means a credential exists but refreshing it failed,
	// typically because the vendor revoked the refresh secret. The user must
	// repeat the full authorization flow. Terminal, not transient.
	ErrNeedsReauthorization = errors.New("provider connection needs reauthorization")

	// ErrInvalidCredentials means the vendor rejected user-supplied credentials
	// (API key, username/password) at validation time.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderNotConfigured means this service's own client id/secret for the
	// vendor is missing from configuration. Fatal to the adapter, never retried.
	ErrProviderNotConfigured = errors.New("provider client credentials not configured")

	// ErrUnsupportedOperation is returned by adapters for operations the vendor's
	// protocol does not have (e.g. refresh on an API-key vendor).
	ErrUnsupportedOperation = errors.New("operation not supported by provider")

	// ErrUnknownProvider means the provider name does not match any adapter.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrAlreadyClaimed means another account claimed the device first.
	ErrAlreadyClaimed = errors.New("device already claimed by another account")

	// ErrNotOwner means the caller tried to release a device claimed by someone else.
	ErrNotOwner = errors.New("device is claimed by another account")

	// ErrNoDevicesClaimed means the user has no claimed devices for the provider.
	ErrNoDevicesClaimed = errors.New("no devices claimed for provider")
)

// ProviderError wraps a network failure or non-2xx vendor response. The detail
// carries the vendor's raw body for server-side diagnostics; it must never be
// surfaced to a client response. Secrets are never placed in Detail.
type ProviderError struct {
	Provider   string
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: vendor request failed", e.Provider)
	}
	return fmt.Sprintf("%s: vendor returned status %d", e.Provider, e.StatusCode)
}

// NewProviderError builds a ProviderError from a vendor response.
func NewProviderError(provider string, statusCode int, body []byte) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Detail: string(body)}
}

// AsProviderError unwraps err into a *ProviderError if it is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}
