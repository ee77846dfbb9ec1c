package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

func newWallbox(serverURL string) *Wallbox {
	return NewWallbox(config.VendorConfig{APIBaseURL: serverURL})
}

func TestWallboxAuthenticate(t *testing.T) {
	ttl := time.Now().Add(2 * time.Hour).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wallboxTokenPath, r.URL.Path)
		email, password, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "user@example.com", email)
		assert.Equal(t, "hunter2", password)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jwt":"access-jwt","refresh_token":"refresh-1","ttl":` + strconv.FormatInt(ttl, 10) + `}`))
	}))
	defer server.Close()

	cred, err := newWallbox(server.URL).Authenticate(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderWallbox, cred.Provider)
	assert.Equal(t, "access-jwt", cred.AccessSecret)
	assert.Equal(t, "refresh-1", cred.RefreshSecret)
	require.NotNil(t, cred.ExpiresAt)
	assert.Equal(t, time.UnixMilli(ttl).UTC(), *cred.ExpiresAt)
}

func TestWallboxAuthenticate_WrongPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newWallbox(server.URL).Authenticate(context.Background(), "user@example.com", "wrong")
	assert.ErrorIs(t, err, herrors.ErrInvalidCredentials)
}

func TestWallboxRefreshCredential(t *testing.T) {
	ttl := time.Now().Add(time.Hour).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		// Vendor omits the refresh token on refresh; the old one stays valid.
		_, _ = w.Write([]byte(`{"jwt":"access-jwt-2","ttl":` + strconv.FormatInt(ttl, 10) + `}`))
	}))
	defer server.Close()

	cred, err := newWallbox(server.URL).RefreshCredential(context.Background(), &domain.Credential{
		Provider:      domain.ProviderWallbox,
		AccessSecret:  "access-jwt",
		RefreshSecret: "refresh-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "access-jwt-2", cred.AccessSecret)
	assert.Equal(t, "refresh-1", cred.RefreshSecret)
}

func TestWallboxRefreshCredential_NoRefreshSecret(t *testing.T) {
	_, err := newWallbox("http://unused").RefreshCredential(context.Background(), &domain.Credential{})
	assert.Error(t, err)
}

func TestWallboxListDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wallboxChargerGroupsPath, r.URL.Path)
		assert.Equal(t, "Bearer access-jwt", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"groups":[
			{"name":"Home","chargers":[{"id":101,"name":"Garage","serialNumber":"WB-101"}]},
			{"name":"Office","chargers":[{"id":202,"name":"Lot A","serialNumber":"WB-202"}]}
		]}}`))
	}))
	defer server.Close()

	descriptors, err := newWallbox(server.URL).ListDevices(context.Background(),
		&domain.Credential{AccessSecret: "access-jwt"})
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, "101", descriptors[0].DeviceID)
	assert.Equal(t, domain.DeviceKindCharger, descriptors[0].Kind)
	assert.Equal(t, "WB-101", descriptors[0].Metadata["serial_number"])
	assert.Equal(t, "Office", descriptors[1].Metadata["group"])
}

func TestWallboxFetchTelemetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wallboxChargerStatusPath+"/101", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"charging_power":7.4,"added_energy":12.5,"status_id":193,` +
			`"last_sync":"2026-08-29 10:30:00"}`))
	}))
	defer server.Close()

	units, err := newWallbox(server.URL).FetchTelemetry(context.Background(),
		&domain.Credential{AccessSecret: "access-jwt"},
		&domain.ConnectedDevice{DeviceID: "101", Metadata: map[string]string{"serial_number": "WB-101"}})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "WB-101", units[0].SerialNumber)
	assert.Equal(t, domain.UnitStatusNormal, units[0].Status)
	assert.InDelta(t, 7400.0, units[0].PowerW, 0.001)
	assert.InDelta(t, 12500.0, units[0].EnergyWh, 0.001)
}

func TestWallboxUnitStatusMapping(t *testing.T) {
	assert.Equal(t, domain.UnitStatusSilent, wallboxUnitStatus(0))
	assert.Equal(t, domain.UnitStatusSilent, wallboxUnitStatus(163))
	assert.Equal(t, domain.UnitStatusDegraded, wallboxUnitStatus(14))
	assert.Equal(t, domain.UnitStatusDegraded, wallboxUnitStatus(15))
	assert.Equal(t, domain.UnitStatusNormal, wallboxUnitStatus(193))
}

func TestWallboxAuthorizationRedirectUnsupported(t *testing.T) {
	w := newWallbox("http://unused")
	_, err := w.BeginAuthorization(context.Background(), "u1", "http://cb")
	assert.ErrorIs(t, err, herrors.ErrUnsupportedOperation)
}
