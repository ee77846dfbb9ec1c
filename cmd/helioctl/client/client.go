// Package client is the HTTP client helioctl uses to talk to the heliowatt
// server. Every request carries the configured session token as a bearer
// credential.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/heliowatt/heliowatt/cmd/helioctl/config"
	"github.com/heliowatt/heliowatt/domain"
)

// Client calls the heliowatt provider API.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// New builds a client from the CLI configuration.
func New(cfg *config.Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no server endpoint configured, set one in the %s config", config.AppName)
	}
	if cfg.SessionToken == "" {
		return nil, fmt.Errorf("no session token configured, set session_token in the %s config", config.AppName)
	}
	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.SessionToken,
		http:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// apiError is the server's error envelope.
type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Code != "" {
			if apiErr.Message != "" {
				return fmt.Errorf("server returned %s: %s", apiErr.Code, apiErr.Message)
			}
			return fmt.Errorf("server returned %s", apiErr.Code)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AuthURL fetches the vendor authorization URL for an OAuth provider.
func (c *Client) AuthURL(ctx context.Context, provider, redirectURI string) (string, error) {
	var resp struct {
		AuthURL string `json:"auth_url"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/providers/"+provider+"/auth/url",
		map[string]string{"redirect_uri": redirectURI}, &resp)
	return resp.AuthURL, err
}

// Exchange completes an OAuth authorization with the code from the vendor.
func (c *Client) Exchange(ctx context.Context, provider, code, redirectURI string) error {
	return c.do(ctx, http.MethodPost, "/v1/providers/"+provider+"/auth/exchange",
		map[string]string{"code": code, "redirect_uri": redirectURI}, nil)
}

// ValidateAPIKey connects the API-key provider after a server-side probe.
func (c *Client) ValidateAPIKey(ctx context.Context, apiKey string, siteID int64) (*domain.SiteSummary, error) {
	var resp struct {
		Site domain.SiteSummary `json:"site"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/providers/solaredge/auth/validate",
		map[string]interface{}{"api_key": apiKey, "site_id": siteID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Site, nil
}

// Login connects the username/password provider.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/v1/providers/wallbox/auth/login",
		map[string]string{"email": email, "password": password}, nil)
}

// Devices lists the provider's devices with claim annotations.
func (c *Client) Devices(ctx context.Context, provider string) ([]domain.DeviceDescriptor, error) {
	var resp struct {
		Devices []domain.DeviceDescriptor `json:"devices"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/providers/"+provider+"/devices", nil, &resp)
	return resp.Devices, err
}

// Claim claims a device for the authenticated user.
func (c *Client) Claim(ctx context.Context, provider, deviceID, name, kind string) (*domain.ConnectedDevice, error) {
	var resp struct {
		Device domain.ConnectedDevice `json:"device"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/providers/"+provider+"/devices/claim",
		map[string]string{"device_id": deviceID, "name": name, "kind": kind}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Device, nil
}

// Release releases the user's claim on a device.
func (c *Client) Release(ctx context.Context, provider, deviceID string) error {
	return c.do(ctx, http.MethodPost, "/v1/providers/"+provider+"/devices/release",
		map[string]string{"device_id": deviceID}, nil)
}

// TelemetryReport is the aggregated telemetry response.
type TelemetryReport struct {
	System        domain.AggregateSummary `json:"system"`
	Arrays        []domain.ArraySummary   `json:"arrays"`
	FailedDevices []domain.DeviceFailure  `json:"failed_devices"`
}

// Telemetry fetches the aggregated telemetry summary for a provider.
func (c *Client) Telemetry(ctx context.Context, provider string) (*TelemetryReport, error) {
	var resp TelemetryReport
	if err := c.do(ctx, http.MethodGet, "/v1/providers/"+provider+"/telemetry", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status reports whether the provider is connected.
func (c *Client) Status(ctx context.Context, provider string) (bool, error) {
	var resp struct {
		Connected bool `json:"connected"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/providers/"+provider+"/status", nil, &resp)
	return resp.Connected, err
}

// Disconnect removes the stored credential for a provider.
func (c *Client) Disconnect(ctx context.Context, provider string) error {
	return c.do(ctx, http.MethodDelete, "/v1/providers/"+provider, nil, nil)
}
