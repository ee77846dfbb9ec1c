package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

func newTesla(authURL, apiURL string) *Tesla {
	return NewTesla(config.VendorConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthBaseURL:  authURL,
		APIBaseURL:   apiURL,
	})
}

func TestTeslaBeginAuthorization(t *testing.T) {
	adapter := newTesla("https://auth.example.com", "")

	authURL, err := adapter.BeginAuthorization(context.Background(), "u1", "https://app.example.com/cb")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, teslaAuthorizePath, parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/cb", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "offline_access")
	assert.NotEmpty(t, q.Get("state"))
}

func TestTeslaNotConfigured(t *testing.T) {
	adapter := NewTesla(config.VendorConfig{})
	ctx := context.Background()

	_, err := adapter.BeginAuthorization(ctx, "u1", "https://app.example.com/cb")
	assert.ErrorIs(t, err, herrors.ErrProviderNotConfigured)
	_, err = adapter.CompleteAuthorization(ctx, "code", "https://app.example.com/cb")
	assert.ErrorIs(t, err, herrors.ErrProviderNotConfigured)
	_, err = adapter.RefreshCredential(ctx, &domain.Credential{RefreshSecret: "r"})
	assert.ErrorIs(t, err, herrors.ErrProviderNotConfigured)
}

func TestTeslaCompleteAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, teslaTokenPath, r.URL.Path)
		require.NoError(t, r.ParseForm())
		// Grant parameters travel in the form body, not the Authorization header.
		assert.Equal(t, "client-id", r.PostFormValue("client_id"))
		assert.Equal(t, "authorization_code", r.PostFormValue("grant_type"))
		assert.Equal(t, "the-code", r.PostFormValue("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1",` +
			`"token_type":"Bearer","expires_in":28800}`))
	}))
	defer server.Close()

	cred, err := newTesla(server.URL, "").CompleteAuthorization(context.Background(), "the-code", "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderTesla, cred.Provider)
	assert.Equal(t, "access-1", cred.AccessSecret)
	assert.Equal(t, "refresh-1", cred.RefreshSecret)
	require.NotNil(t, cred.ExpiresAt)
}

func TestTeslaCompleteAuthorization_ExpiredCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer server.Close()

	_, err := newTesla(server.URL, "").CompleteAuthorization(context.Background(), "expired", "https://app.example.com/cb")
	require.Error(t, err)
	pe, ok := herrors.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ProviderTesla, pe.Provider)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
}

func TestTeslaRefreshCredential_CarriesRefreshForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "refresh-1", r.PostFormValue("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		// No refresh_token in the response: the vendor did not rotate it.
		_, _ = w.Write([]byte(`{"access_token":"access-2","token_type":"Bearer","expires_in":28800}`))
	}))
	defer server.Close()

	cred, err := newTesla(server.URL, "").RefreshCredential(context.Background(), &domain.Credential{
		Provider:      domain.ProviderTesla,
		RefreshSecret: "refresh-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "access-2", cred.AccessSecret)
	assert.Equal(t, "refresh-1", cred.RefreshSecret)
}

func TestTeslaListDevices_MergesVehiclesAndEnergyProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case teslaVehiclesPath:
			_, _ = w.Write([]byte(`{"response":[
				{"id":12345,"vehicle_id":999,"vin":"5YJ3E1EA7KF000001","display_name":"Daily","state":"online"}
			]}`))
		case teslaProductsPath:
			_, _ = w.Write([]byte(`{"response":[
				{"energy_site_id":0,"resource_type":"vehicle"},
				{"energy_site_id":777,"resource_type":"battery","site_name":"Home Powerwall"},
				{"energy_site_id":888,"resource_type":"solar","site_name":"Roof"}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	descriptors, err := newTesla("", server.URL).ListDevices(context.Background(),
		&domain.Credential{AccessSecret: "access-1"})
	require.NoError(t, err)
	require.Len(t, descriptors, 3)

	assert.Equal(t, "5YJ3E1EA7KF000001", descriptors[0].DeviceID)
	assert.Equal(t, domain.DeviceKindVehicle, descriptors[0].Kind)
	assert.Equal(t, "12345", descriptors[0].Metadata["api_id"])

	assert.Equal(t, "777", descriptors[1].DeviceID)
	assert.Equal(t, domain.DeviceKindBattery, descriptors[1].Kind)

	assert.Equal(t, "888", descriptors[2].DeviceID)
	assert.Equal(t, domain.DeviceKindSolar, descriptors[2].Kind)
}

func TestTeslaFetchVehicleTelemetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, teslaVehiclesPath+"/12345/vehicle_data", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"state":"online","charge_state":` +
			`{"charge_energy_added":18.5,"charger_power":11,"timestamp":1724932800000}}}`))
	}))
	defer server.Close()

	units, err := newTesla("", server.URL).FetchTelemetry(context.Background(),
		&domain.Credential{AccessSecret: "access-1"},
		&domain.ConnectedDevice{
			DeviceID: "5YJ3E1EA7KF000001",
			Kind:     domain.DeviceKindVehicle,
			Metadata: map[string]string{"api_id": "12345"},
		})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "5YJ3E1EA7KF000001", units[0].SerialNumber)
	assert.Equal(t, domain.UnitStatusNormal, units[0].Status)
	assert.InDelta(t, 11000.0, units[0].PowerW, 0.001)
	assert.InDelta(t, 18500.0, units[0].EnergyWh, 0.001)
}

func TestTeslaFetchVehicleTelemetry_AsleepVehicleIsSilent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"state":"asleep","charge_state":` +
			`{"charge_energy_added":0,"charger_power":0,"timestamp":1724932800000}}}`))
	}))
	defer server.Close()

	units, err := newTesla("", server.URL).FetchTelemetry(context.Background(),
		&domain.Credential{AccessSecret: "access-1"},
		&domain.ConnectedDevice{
			DeviceID: "5YJ3E1EA7KF000001",
			Kind:     domain.DeviceKindVehicle,
			Metadata: map[string]string{"api_id": "12345"},
		})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, domain.UnitStatusSilent, units[0].Status)
}
