package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliowatt/heliowatt/cache"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
	"github.com/heliowatt/heliowatt/inmem"
	"github.com/heliowatt/heliowatt/log"
	"github.com/heliowatt/heliowatt/providers"
	"github.com/heliowatt/heliowatt/services"
)

// stubAdapter is a scriptable vendor adapter covering all three auth schemes.
type stubAdapter struct {
	name        string
	completeFn  func(ctx context.Context, code, redirectURI string) (*domain.Credential, error)
	validateFn  func(ctx context.Context, apiKey string, siteID int64) (*domain.SiteSummary, error)
	loginFn     func(ctx context.Context, email, password string) (*domain.Credential, error)
	listFn      func(ctx context.Context, cred *domain.Credential) ([]domain.DeviceDescriptor, error)
	telemetryFn func(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error)
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) BeginAuthorization(_ context.Context, _, redirectURI string) (string, error) {
	return "https://vendor.example.com/authorize?redirect_uri=" + redirectURI, nil
}

func (s *stubAdapter) CompleteAuthorization(ctx context.Context, code, redirectURI string) (*domain.Credential, error) {
	if s.completeFn == nil {
		return nil, herrors.ErrUnsupportedOperation
	}
	return s.completeFn(ctx, code, redirectURI)
}

func (s *stubAdapter) RefreshCredential(context.Context, *domain.Credential) (*domain.Credential, error) {
	return nil, herrors.ErrUnsupportedOperation
}

func (s *stubAdapter) ListDevices(ctx context.Context, cred *domain.Credential) ([]domain.DeviceDescriptor, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, cred)
}

func (s *stubAdapter) FetchTelemetry(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
	if s.telemetryFn == nil {
		return nil, nil
	}
	return s.telemetryFn(ctx, cred, device)
}

func (s *stubAdapter) ValidateAPIKey(ctx context.Context, apiKey string, siteID int64) (*domain.SiteSummary, error) {
	if s.validateFn == nil {
		return nil, herrors.ErrUnsupportedOperation
	}
	return s.validateFn(ctx, apiKey, siteID)
}

func (s *stubAdapter) Authenticate(ctx context.Context, email, password string) (*domain.Credential, error) {
	if s.loginFn == nil {
		return nil, herrors.ErrUnsupportedOperation
	}
	return s.loginFn(ctx, email, password)
}

type fixture struct {
	e       *echo.Echo
	creds   *inmem.CredentialRepository
	devices *inmem.DeviceRepository
}

func newFixture(t *testing.T, adapters ...domain.Provider) *fixture {
	t.Helper()
	logger := log.NewZerologAdapter(zerolog.Disabled, false)
	creds := inmem.NewCredentialRepository()
	devices := inmem.NewDeviceRepository()
	sessions := inmem.NewSessionRepository()
	sessions.Put(&domain.Session{
		ID:        "s1",
		UserID:    "u1",
		Token:     "tok-u1",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	memCache := cache.NewMemoryCredentialCache()
	t.Cleanup(memCache.Stop)

	registry := providers.NewRegistryWith(adapters...)
	tokens := services.NewTokenService(creds, registry, memCache, logger)
	claims := services.NewClaimService(devices, logger)
	aggregate := services.NewAggregateService(tokens, devices, registry, logger)

	e := echo.New()
	NewAPI(tokens, claims, aggregate, registry, sessions).RegisterRoutes(e)
	return &fixture{e: e, creds: creds, devices: devices}
}

func (f *fixture) request(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func seedCredential(t *testing.T, f *fixture, provider string) {
	t.Helper()
	expiry := time.Now().Add(time.Hour).UTC()
	require.NoError(t, f.creds.Upsert(context.Background(), &domain.Credential{
		UserID:       "u1",
		Provider:     provider,
		AccessSecret: "secret-value",
		ExpiresAt:    &expiry,
	}))
}

func TestMissingTokenRejected(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tesla"})

	rec := f.request(t, http.MethodGet, "/v1/providers/tesla/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeBody(t, rec)["error"])
}

func TestUnknownTokenRejected(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tesla"})

	rec := f.request(t, http.MethodGet, "/v1/providers/tesla/status", "nope", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tesla"})

	rec := f.request(t, http.MethodGet, "/v1/providers/tesla/status", "tok-u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["connected"])

	seedCredential(t, f, "tesla")
	rec = f.request(t, http.MethodGet, "/v1/providers/tesla/status", "tok-u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["connected"])
}

func TestUnknownProviderIs404(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tesla"})

	rec := f.request(t, http.MethodGet, "/v1/providers/nonsense/status", "tok-u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_provider", decodeBody(t, rec)["error"])
}

func TestExchangeFailureLeavesStoreUntouched(t *testing.T) {
	adapter := &stubAdapter{
		name: "tesla",
		completeFn: func(context.Context, string, string) (*domain.Credential, error) {
			return nil, herrors.NewProviderError("tesla", 400, []byte(`{"error":"invalid_grant","secret":"sk-leak"}`))
		},
	}
	f := newFixture(t, adapter)

	rec := f.request(t, http.MethodPost, "/v1/providers/tesla/auth/exchange", "tok-u1",
		`{"code":"expired","redirect_uri":"https://app/cb"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "provider_error", body["error"])
	// Vendor detail never reaches the client.
	assert.NotContains(t, rec.Body.String(), "sk-leak")
	assert.NotContains(t, rec.Body.String(), "invalid_grant")

	_, err := f.creds.Get(context.Background(), "u1", "tesla")
	assert.ErrorIs(t, err, herrors.ErrNotConnected)
}

func TestExchangeSuccessPersistsCredential(t *testing.T) {
	adapter := &stubAdapter{
		name: "tesla",
		completeFn: func(context.Context, string, string) (*domain.Credential, error) {
			expiry := time.Now().Add(8 * time.Hour).UTC()
			return &domain.Credential{
				Provider:      "tesla",
				AccessSecret:  "access-1",
				RefreshSecret: "refresh-1",
				ExpiresAt:     &expiry,
			}, nil
		},
	}
	f := newFixture(t, adapter)

	rec := f.request(t, http.MethodPost, "/v1/providers/tesla/auth/exchange", "tok-u1",
		`{"code":"good","redirect_uri":"https://app/cb"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	// Secrets never appear in responses.
	assert.NotContains(t, rec.Body.String(), "access-1")

	stored, err := f.creds.Get(context.Background(), "u1", "tesla")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessSecret)
	assert.Equal(t, "u1", stored.UserID)
}

func TestValidateHandlerStoresNonExpiringCredential(t *testing.T) {
	adapter := &stubAdapter{
		name: "solaredge",
		validateFn: func(_ context.Context, apiKey string, siteID int64) (*domain.SiteSummary, error) {
			return &domain.SiteSummary{SiteID: siteID, Name: "Home Array", PeakPowerKW: 9.8, Status: "Active"}, nil
		},
	}
	f := newFixture(t, adapter)

	rec := f.request(t, http.MethodPost, "/v1/providers/solaredge/auth/validate", "tok-u1",
		`{"api_key":"the-key","site_id":7}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "the-key")

	stored, err := f.creds.Get(context.Background(), "u1", "solaredge")
	require.NoError(t, err)
	assert.Equal(t, "the-key", stored.AccessSecret)
	assert.Nil(t, stored.ExpiresAt)
	assert.Equal(t, "7", stored.Extra[domain.ExtraSiteID])
	assert.Equal(t, "Home Array", stored.Extra[domain.ExtraSiteName])
}

func TestValidateHandlerRejectsBadKey(t *testing.T) {
	adapter := &stubAdapter{
		name: "solaredge",
		validateFn: func(context.Context, string, int64) (*domain.SiteSummary, error) {
			return nil, herrors.ErrInvalidCredentials
		},
	}
	f := newFixture(t, adapter)

	rec := f.request(t, http.MethodPost, "/v1/providers/solaredge/auth/validate", "tok-u1",
		`{"api_key":"bad","site_id":7}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeBody(t, rec)["error"])

	_, err := f.creds.Get(context.Background(), "u1", "solaredge")
	assert.ErrorIs(t, err, herrors.ErrNotConnected)
}

func TestListDevicesAnnotatesClaims(t *testing.T) {
	adapter := &stubAdapter{
		name: "enphase",
		listFn: func(context.Context, *domain.Credential) ([]domain.DeviceDescriptor, error) {
			return []domain.DeviceDescriptor{
				{DeviceID: "SYS-1", Name: "Roof", Kind: domain.DeviceKindSolar},
				{DeviceID: "SYS-2", Name: "Barn", Kind: domain.DeviceKindSolar},
			}, nil
		},
	}
	f := newFixture(t, adapter)
	seedCredential(t, f, "enphase")
	require.NoError(t, f.devices.Claim(context.Background(), &domain.ConnectedDevice{
		Provider: "enphase", DeviceID: "SYS-2", UserID: "other-user",
	}))

	rec := f.request(t, http.MethodGet, "/v1/providers/enphase/devices", "tok-u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Devices []domain.DeviceDescriptor `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Devices, 2)
	assert.Empty(t, body.Devices[0].ClaimedBy)
	assert.Equal(t, "other-user", body.Devices[1].ClaimedBy)
}

func TestListDevicesWithoutCredentialIsConflict(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "enphase"})

	rec := f.request(t, http.MethodGet, "/v1/providers/enphase/devices", "tok-u1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_connected", decodeBody(t, rec)["error"])
}

func TestClaimConflict(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tesla"})
	require.NoError(t, f.devices.Claim(context.Background(), &domain.ConnectedDevice{
		Provider: "tesla", DeviceID: "VIN1", UserID: "other-user",
	}))

	rec := f.request(t, http.MethodPost, "/v1/providers/tesla/devices/claim", "tok-u1",
		`{"device_id":"VIN1","name":"Model 3","kind":"vehicle"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_claimed", decodeBody(t, rec)["error"])
}

func TestReleaseNotOwnerIsForbidden(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "tesla"})
	require.NoError(t, f.devices.Claim(context.Background(), &domain.ConnectedDevice{
		Provider: "tesla", DeviceID: "VIN1", UserID: "other-user",
	}))

	rec := f.request(t, http.MethodPost, "/v1/providers/tesla/devices/release", "tok-u1",
		`{"device_id":"VIN1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTelemetryPartialFailureIs200(t *testing.T) {
	adapter := &stubAdapter{
		name: "enphase",
		telemetryFn: func(_ context.Context, _ *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
			if device.DeviceID == "SYS-BAD" {
				return nil, herrors.NewProviderError("enphase", 500, []byte("vendor stack trace"))
			}
			return []domain.TelemetryUnit{{
				SerialNumber: "INV-1",
				Status:       domain.UnitStatusNormal,
				LastReportAt: time.Now().UTC(),
				EnergyWh:     800,
			}}, nil
		},
	}
	f := newFixture(t, adapter)
	seedCredential(t, f, "enphase")
	for _, id := range []string{"SYS-OK", "SYS-BAD"} {
		require.NoError(t, f.devices.Claim(context.Background(), &domain.ConnectedDevice{
			Provider: "enphase", DeviceID: id, UserID: "u1",
		}))
	}

	rec := f.request(t, http.MethodGet, "/v1/providers/enphase/telemetry", "tok-u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "vendor stack trace")

	var body struct {
		System        domain.AggregateSummary `json:"system"`
		FailedDevices []domain.DeviceFailure  `json:"failed_devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.System.UnitCount)
	require.Len(t, body.FailedDevices, 1)
	assert.Equal(t, "SYS-BAD", body.FailedDevices[0].DeviceID)
}

func TestTelemetryNoDevicesIsConflict(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "enphase"})
	seedCredential(t, f, "enphase")

	rec := f.request(t, http.MethodGet, "/v1/providers/enphase/telemetry", "tok-u1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_devices_claimed", decodeBody(t, rec)["error"])
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, &stubAdapter{name: "wallbox"})
	seedCredential(t, f, "wallbox")

	rec := f.request(t, http.MethodDelete, "/v1/providers/wallbox", "tok-u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/v1/providers/wallbox/status", "tok-u1", "")
	assert.Equal(t, false, decodeBody(t, rec)["connected"])
}

func TestWallboxLoginStoresCredential(t *testing.T) {
	adapter := &stubAdapter{
		name: "wallbox",
		loginFn: func(_ context.Context, email, password string) (*domain.Credential, error) {
			if password != "hunter2" {
				return nil, herrors.ErrInvalidCredentials
			}
			expiry := time.Now().Add(time.Hour).UTC()
			return &domain.Credential{Provider: "wallbox", AccessSecret: "jwt-1", RefreshSecret: "r-1", ExpiresAt: &expiry}, nil
		},
	}
	f := newFixture(t, adapter)

	rec := f.request(t, http.MethodPost, "/v1/providers/wallbox/auth/login", "tok-u1",
		`{"email":"user@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.request(t, http.MethodPost, "/v1/providers/wallbox/auth/login", "tok-u1",
		`{"email":"user@example.com","password":"hunter2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.creds.Get(context.Background(), "u1", "wallbox")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", stored.AccessSecret)
}
