package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// Tesla API paths.
const (
	teslaAuthorizePath = "/oauth2/v3/authorize"
	teslaTokenPath     = "/oauth2/v3/token"
	teslaVehiclesPath  = "/api/1/vehicles"
	teslaProductsPath  = "/api/1/products"
)

// teslaScopes cover vehicle and energy product data.
var teslaScopes = []string{"openid", "offline_access", "vehicle_device_data", "energy_device_data"}

// Tesla is the vehicle/solar/battery vendor adapter. Authorization-code OAuth2
// with grant parameters in the form body; device listing fans out to the
// vehicles and energy products endpoints and merges the results.
type Tesla struct {
	cfg  config.VendorConfig
	http *http.Client
}

// NewTesla creates the Tesla adapter.
func NewTesla(cfg config.VendorConfig) *Tesla {
	return &Tesla{cfg: cfg, http: newHTTPClient()}
}

func (t *Tesla) Name() string { return domain.ProviderTesla }

func (t *Tesla) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     t.cfg.ClientID,
		ClientSecret: t.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       teslaScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   t.cfg.AuthBaseURL + teslaAuthorizePath,
			TokenURL:  t.cfg.AuthBaseURL + teslaTokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (t *Tesla) configured() error {
	if t.cfg.ClientID == "" || t.cfg.ClientSecret == "" {
		return herrors.ErrProviderNotConfigured
	}
	return nil
}

func (t *Tesla) BeginAuthorization(_ context.Context, _, redirectURI string) (string, error) {
	if err := t.configured(); err != nil {
		return "", err
	}
	// State is opaque to the vendor; the redirect completion flow echoes it
	// back so the collaborator can correlate the callback.
	return t.oauthConfig(redirectURI).AuthCodeURL(uuid.NewString()), nil
}

func (t *Tesla) CompleteAuthorization(ctx context.Context, code, redirectURI string) (*domain.Credential, error) {
	if err := t.configured(); err != nil {
		return nil, err
	}
	tok, err := t.exchange(func(cfg *oauth2.Config) (*oauth2.Token, error) {
		return cfg.Exchange(t.clientContext(ctx), code)
	}, redirectURI)
	if err != nil {
		return nil, err
	}
	return t.credentialFromToken(tok, ""), nil
}

func (t *Tesla) RefreshCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if err := t.configured(); err != nil {
		return nil, err
	}
	if cred.RefreshSecret == "" {
		return nil, errors.New("tesla: credential has no refresh secret")
	}
	tok, err := t.exchange(func(cfg *oauth2.Config) (*oauth2.Token, error) {
		return cfg.TokenSource(t.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshSecret}).Token()
	}, "")
	if err != nil {
		return nil, err
	}
	return t.credentialFromToken(tok, cred.RefreshSecret), nil
}

// exchange runs an oauth2 grant and normalizes failures: vendor-side rejects
// become ProviderError, everything else passes through.
func (t *Tesla) exchange(fn func(*oauth2.Config) (*oauth2.Token, error), redirectURI string) (*oauth2.Token, error) {
	tok, err := fn(t.oauthConfig(redirectURI))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, herrors.NewProviderError(domain.ProviderTesla, re.Response.StatusCode, re.Body)
		}
		return nil, &herrors.ProviderError{Provider: domain.ProviderTesla, Detail: err.Error()}
	}
	return tok, nil
}

// clientContext routes oauth2's internal HTTP through the adapter's bounded
// client.
func (t *Tesla) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, t.http)
}

// credentialFromToken maps an oauth2 token onto a credential, carrying the
// prior refresh secret forward when the vendor did not rotate it.
func (t *Tesla) credentialFromToken(tok *oauth2.Token, priorRefresh string) *domain.Credential {
	cred := &domain.Credential{
		Provider:      domain.ProviderTesla,
		AccessSecret:  tok.AccessToken,
		RefreshSecret: tok.RefreshToken,
	}
	if cred.RefreshSecret == "" {
		cred.RefreshSecret = priorRefresh
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		cred.ExpiresAt = &expiry
	}
	return cred
}

type teslaVehicle struct {
	ID          int64  `json:"id"`
	VehicleID   int64  `json:"vehicle_id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
}

type teslaProduct struct {
	EnergySiteID int64  `json:"energy_site_id"`
	ResourceType string `json:"resource_type"`
	SiteName     string `json:"site_name"`
}

func (t *Tesla) ListDevices(ctx context.Context, cred *domain.Credential) ([]domain.DeviceDescriptor, error) {
	var vehicles struct {
		Response []teslaVehicle `json:"response"`
	}
	if err := getJSON(ctx, t.http, domain.ProviderTesla, t.cfg.APIBaseURL+teslaVehiclesPath, cred.AccessSecret, &vehicles); err != nil {
		return nil, err
	}

	var products struct {
		Response []teslaProduct `json:"response"`
	}
	if err := getJSON(ctx, t.http, domain.ProviderTesla, t.cfg.APIBaseURL+teslaProductsPath, cred.AccessSecret, &products); err != nil {
		return nil, err
	}

	descriptors := make([]domain.DeviceDescriptor, 0, len(vehicles.Response)+len(products.Response))
	for _, v := range vehicles.Response {
		descriptors = append(descriptors, domain.DeviceDescriptor{
			DeviceID: v.VIN,
			Name:     v.DisplayName,
			Kind:     domain.DeviceKindVehicle,
			Metadata: map[string]string{
				"api_id": strconv.FormatInt(v.ID, 10),
				"state":  v.State,
			},
		})
	}
	for _, p := range products.Response {
		if p.EnergySiteID == 0 {
			// The products endpoint lists vehicles too; those were already
			// collected above.
			continue
		}
		kind := domain.DeviceKindSolar
		if p.ResourceType == "battery" {
			kind = domain.DeviceKindBattery
		}
		descriptors = append(descriptors, domain.DeviceDescriptor{
			DeviceID: strconv.FormatInt(p.EnergySiteID, 10),
			Name:     p.SiteName,
			Kind:     kind,
			Metadata: map[string]string{"resource_type": p.ResourceType},
		})
	}
	return descriptors, nil
}

func (t *Tesla) FetchTelemetry(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
	if device.Kind == domain.DeviceKindVehicle {
		return t.fetchVehicleTelemetry(ctx, cred, device)
	}
	return t.fetchEnergySiteTelemetry(ctx, cred, device)
}

func (t *Tesla) fetchVehicleTelemetry(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
	apiID := device.Metadata["api_id"]
	if apiID == "" {
		return nil, fmt.Errorf("tesla: device %s has no api_id metadata", device.DeviceID)
	}
	var data struct {
		Response struct {
			State       string `json:"state"`
			ChargeState struct {
				ChargeEnergyAdded float64 `json:"charge_energy_added"`
				ChargerPower      float64 `json:"charger_power"`
				Timestamp         int64   `json:"timestamp"`
			} `json:"charge_state"`
		} `json:"response"`
	}
	url := fmt.Sprintf("%s%s/%s/vehicle_data", t.cfg.APIBaseURL, teslaVehiclesPath, apiID)
	if err := getJSON(ctx, t.http, domain.ProviderTesla, url, cred.AccessSecret, &data); err != nil {
		return nil, err
	}

	status := domain.UnitStatusNormal
	if data.Response.State != "online" {
		status = domain.UnitStatusSilent
	}
	cs := data.Response.ChargeState
	return []domain.TelemetryUnit{{
		SerialNumber: device.DeviceID,
		Status:       status,
		LastReportAt: time.UnixMilli(cs.Timestamp).UTC(),
		PowerW:       cs.ChargerPower * 1000,
		EnergyWh:     cs.ChargeEnergyAdded * 1000,
	}}, nil
}

func (t *Tesla) fetchEnergySiteTelemetry(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
	var data struct {
		Response struct {
			SolarPower      float64 `json:"solar_power"`
			EnergyLeft      float64 `json:"energy_left"`
			TotalPackEnergy float64 `json:"total_pack_energy"`
			Timestamp       string  `json:"timestamp"`
		} `json:"response"`
	}
	url := fmt.Sprintf("%s/api/1/energy_sites/%s/live_status", t.cfg.APIBaseURL, device.DeviceID)
	if err := getJSON(ctx, t.http, domain.ProviderTesla, url, cred.AccessSecret, &data); err != nil {
		return nil, err
	}

	reportedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, data.Response.Timestamp); err == nil {
		reportedAt = ts.UTC()
	}
	energy := data.Response.EnergyLeft
	if device.Kind == domain.DeviceKindSolar {
		energy = data.Response.TotalPackEnergy
	}
	return []domain.TelemetryUnit{{
		SerialNumber: device.DeviceID,
		Status:       domain.UnitStatusNormal,
		LastReportAt: reportedAt,
		PowerW:       data.Response.SolarPower,
		EnergyWh:     energy,
	}}, nil
}
