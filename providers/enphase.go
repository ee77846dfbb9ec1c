package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

const (
	enphaseAuthorizePath = "/oauth/authorize"
	enphaseTokenPath     = "/oauth/token"
	enphaseSystemsPath   = "/systems"
	enphaseInvertersPath = "/systems/inverters_summary_by_envoy_or_site"
)

// Enphase is the microinverter vendor adapter. Authorization-code OAuth2 with
// HTTP Basic client authentication on the token endpoint; data calls carry the
// developer API key alongside the user's bearer token. Telemetry is reported
// per gateway (envoy), which is the physical sub-array grouping the aggregator
// preserves.
type Enphase struct {
	cfg  config.VendorConfig
	http *http.Client
}

// NewEnphase creates the Enphase adapter.
func NewEnphase(cfg config.VendorConfig) *Enphase {
	return &Enphase{cfg: cfg, http: newHTTPClient()}
}

func (e *Enphase) Name() string { return domain.ProviderEnphase }

func (e *Enphase) configured() error {
	if e.cfg.ClientID == "" || e.cfg.ClientSecret == "" {
		return herrors.ErrProviderNotConfigured
	}
	return nil
}

func (e *Enphase) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  e.cfg.AuthBaseURL + enphaseAuthorizePath,
			TokenURL: e.cfg.AuthBaseURL + enphaseTokenPath,
			// Client id/secret go in the Authorization header as HTTP Basic.
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (e *Enphase) BeginAuthorization(_ context.Context, _, redirectURI string) (string, error) {
	if err := e.configured(); err != nil {
		return "", err
	}
	return e.oauthConfig(redirectURI).AuthCodeURL(uuid.NewString()), nil
}

func (e *Enphase) CompleteAuthorization(ctx context.Context, code, redirectURI string) (*domain.Credential, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	tok, err := e.oauthConfig(redirectURI).Exchange(e.clientContext(ctx), code)
	if err != nil {
		return nil, e.wrapOAuthError(err)
	}
	return e.credentialFromToken(tok, ""), nil
}

func (e *Enphase) RefreshCredential(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if err := e.configured(); err != nil {
		return nil, err
	}
	if cred.RefreshSecret == "" {
		return nil, errors.New("enphase: credential has no refresh secret")
	}
	ts := e.oauthConfig("").TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshSecret})
	tok, err := ts.Token()
	if err != nil {
		return nil, e.wrapOAuthError(err)
	}
	return e.credentialFromToken(tok, cred.RefreshSecret), nil
}

func (e *Enphase) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.http)
}

func (e *Enphase) wrapOAuthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return herrors.NewProviderError(domain.ProviderEnphase, re.Response.StatusCode, re.Body)
	}
	return &herrors.ProviderError{Provider: domain.ProviderEnphase, Detail: err.Error()}
}

func (e *Enphase) credentialFromToken(tok *oauth2.Token, priorRefresh string) *domain.Credential {
	cred := &domain.Credential{
		Provider:      domain.ProviderEnphase,
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

// dataURL appends the developer API key required on every data call.
func (e *Enphase) dataURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", e.cfg.APIKey)
	return e.cfg.APIBaseURL + path + "?" + params.Encode()
}

func (e *Enphase) ListDevices(ctx context.Context, cred *domain.Credential) ([]domain.DeviceDescriptor, error) {
	var systems struct {
		Systems []struct {
			SystemID int64  `json:"system_id"`
			Name     string `json:"name"`
			Status   string `json:"status"`
		} `json:"systems"`
	}
	if err := getJSON(ctx, e.http, domain.ProviderEnphase, e.dataURL(enphaseSystemsPath, nil), cred.AccessSecret, &systems); err != nil {
		return nil, err
	}

	descriptors := make([]domain.DeviceDescriptor, 0, len(systems.Systems))
	for _, s := range systems.Systems {
		descriptors = append(descriptors, domain.DeviceDescriptor{
			DeviceID: strconv.FormatInt(s.SystemID, 10),
			Name:     s.Name,
			Kind:     domain.DeviceKindSolar,
			Metadata: map[string]string{"status": s.Status},
		})
	}
	return descriptors, nil
}

type enphaseMeasure struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

type enphaseEnvoyReport struct {
	EnvoySerialNumber string `json:"envoy_serial_number"`
	MicroInverters    []struct {
		SerialNumber   string         `json:"serial_number"`
		Status         string         `json:"status"`
		LastReportDate string         `json:"last_report_date"`
		PowerProduced  enphaseMeasure `json:"power_produced"`
		Energy         enphaseMeasure `json:"energy"`
	} `json:"micro_inverters"`
}

func (e *Enphase) FetchTelemetry(ctx context.Context, cred *domain.Credential, device *domain.ConnectedDevice) ([]domain.TelemetryUnit, error) {
	params := url.Values{"site_id": {device.DeviceID}}
	var reports []enphaseEnvoyReport
	if err := getJSON(ctx, e.http, domain.ProviderEnphase, e.dataURL(enphaseInvertersPath, params), cred.AccessSecret, &reports); err != nil {
		return nil, err
	}

	var units []domain.TelemetryUnit
	for _, report := range reports {
		for _, mi := range report.MicroInverters {
			lastReport, err := time.Parse(time.RFC3339, mi.LastReportDate)
			if err != nil {
				lastReport = time.Time{}
			}
			units = append(units, domain.TelemetryUnit{
				SerialNumber: mi.SerialNumber,
				ArrayID:      report.EnvoySerialNumber,
				Status:       enphaseUnitStatus(mi.Status),
				LastReportAt: lastReport.UTC(),
				PowerW:       mi.PowerProduced.Value,
				EnergyWh:     mi.Energy.Value,
			})
		}
	}
	// Stable display order within a gateway.
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].ArrayID != units[j].ArrayID {
			return units[i].ArrayID < units[j].ArrayID
		}
		return units[i].SerialNumber < units[j].SerialNumber
	})
	return units, nil
}

// enphaseUnitStatus maps the vendor's inverter status onto the normalized
// reporting state. A unit that stopped talking to its gateway is silent, any
// other non-normal state is degraded.
func enphaseUnitStatus(s string) domain.UnitStatus {
	switch s {
	case "normal":
		return domain.UnitStatusNormal
	case "comm", "not_reporting":
		return domain.UnitStatusSilent
	default:
		return domain.UnitStatusDegraded
	}
}
