package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

const (
	wallboxTokenPath         = "/auth/token"
	wallboxChargerGroupsPath = "/v3/chargers/groups"
	wallboxChargerStatusPath = "/chargers/status"
)

// Wallbox is the EV-charger vendor adapter. No authorization redirect: the
// user's email/password are exchanged directly for a short-lived bearer JWT
// plus a refresh token, both via HTTP Basic on the token endpoint. The
// password is forwarded to the vendor and never stored.
type Wallbox struct {
	cfg  config.VendorConfig
	http *http.Client
}

// NewWallbox creates the Wallbox adapter.
func NewWallbox(cfg config.VendorConfig) *Wallbox {
	return &Wallbox{cfg: cfg, http: newHTTPClient()}
}

func (w *Wallbox) Name() string { return domain.ProviderWallbox }

func (w *Wallbox) BeginAuthorization(context.Context, string, string) (string, error) {
	return "", herrors.ErrUnsupportedOperation
}

func (w *Wallbox) CompleteAuthorization(context.Context, string, string) (*domain.Credential, error) {
	return nil, herrors.ErrUnsupportedOperation
}

type wallboxTokenResponse struct {
	JWT          string `json:"jwt"`
	RefreshToken string `json:"refresh_token"`
	// TTL is the access token's expiry as epoch milliseconds.
	TTL int64 `json:"ttl"`
}

func (w *Wallbox) token(ctx context.Context, authorize func(*http.Request)) (*domain.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.APIBaseURL+wallboxTokenPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	authorize(req)

	var tok wallboxTokenResponse
	if err := doJSON(w.http, domain.ProviderWallbox, req, &tok); err != nil {
		return nil, err
	}
	expiry := time.UnixMilli(tok.TTL).UTC()
	return &domain.Credential{
		Provider:      domain.ProviderWallbox,
		AccessSecret:  tok.JWT,
		RefreshSecret: tok.RefreshToken,
		ExpiresAt:     &expiry,
	}, nil
}

// Authenticate exchanges the user's email/password for a token pair. A 401 or
// 403 from the vendor means the credentials are wrong, not that something
// broke.
func (w *Wallbox) Authenticate(ctx context.Context, email, password string) (*domain.Credential, error) {
	cred, err := w.token(ctx, func(req *http.Request) {
		req.SetBasicAuth(email, password)
	})
	if err != nil {
		if pe, ok := herrors.AsProviderError(err); ok &&
			(pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden) {
			return nil, herrors.ErrInvalidCredentials
		}
		return nil, err
	}
	return cred, nil
}

func (w *Wallbox) RefreshCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if cred.RefreshSecret == "" {
		return nil, errors.New("wallbox: credential has no refresh secret")
	}
	refreshed, err := w.token(ctx, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+cred.RefreshSecret)
	})
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshSecret == "" {
		refreshed.RefreshSecret = cred.RefreshSecret
	}
	return refreshed, nil
}

func (w *Wallbox) ListDevices(ctx context.Context, cred *domain.Credential) ([]domain.DeviceDescriptor, error) {
	var groups struct {
		Result struct {
			Groups []struct {
				Name     string `json:"name"`
				Chargers []struct {
					ID           int64  `json:"id"`
					Name         string `json:"name"`
					SerialNumber string `json:"serialNumber"`
				} `json:"chargers"`
			} `json:"groups"`
		} `json:"result"`
	}
	if err := getJSON(ctx, w.http, domain.ProviderWallbox, w.cfg.APIBaseURL+wallboxChargerGroupsPath, cred.AccessSecret, &groups); err != nil {
		return nil, err
	}

	var descriptors []domain.DeviceDescriptor
	for _, g := range groups.Result.Groups {
		for _, c := range g.Chargers {
			descriptors = append(descriptors, domain.DeviceDescriptor{
				DeviceID: fmt.Sprintf("%d", c.ID),
				Name:     c.Name,
				Kind:     domain.DeviceKindCharger,
				Metadata: map[string]string{
					"serial_number": c.SerialNumber,
					"group":         g.Name,
				},
			})
		}
	}
	return descriptors, nil
}

// FetchTelemetry reads one charger's live status: current charging power and
// the energy added by the present (or most recent) charging session.
func (w *Wallbox) FetchTelemetry(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
	var status struct {
		ChargingPowerKW float64 `json:"charging_power"`
		AddedEnergyKWh  float64 `json:"added_energy"`
		StatusID        int     `json:"status_id"`
		LastSync        string  `json:"last_sync"`
	}
	url := fmt.Sprintf("%s%s/%s", w.cfg.APIBaseURL, wallboxChargerStatusPath, device.DeviceID)
	if err := getJSON(ctx, w.http, domain.ProviderWallbox, url, cred.AccessSecret, &status); err != nil {
		return nil, err
	}

	lastSync, err := time.Parse("2006-01-02 15:04:05", status.LastSync)
	if err != nil {
		lastSync = time.Time{}
	}
	serial := device.Metadata["serial_number"]
	if serial == "" {
		serial = device.DeviceID
	}
	return []domain.TelemetryUnit{{
		SerialNumber: serial,
		Status:       wallboxUnitStatus(status.StatusID),
		LastReportAt: lastSync.UTC(),
		PowerW:       status.ChargingPowerKW * 1000,
		EnergyWh:     status.AddedEnergyKWh * 1000,
	}}, nil
}

// wallboxUnitStatus maps the vendor's numeric charger state. Disconnected
// chargers are silent, error states degraded, everything else normal.
func wallboxUnitStatus(statusID int) domain.UnitStatus {
	switch statusID {
	case 0, 163: // unknown / disconnected
		return domain.UnitStatusSilent
	case 14, 15: // error states
		return domain.UnitStatusDegraded
	default:
		return domain.UnitStatusNormal
	}
}
