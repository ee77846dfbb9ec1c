// Package echo exposes the integration core over HTTP. One typed route per
// provider operation: the operation set is a compile-time enumeration of
// handlers, not a free-form action string.
package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
	"github.com/heliowatt/heliowatt/services"
)

// API holds the handler dependencies.
type API struct {
	tokens    *services.TokenService
	claims    *services.ClaimService
	aggregate *services.AggregateService
	providers domain.ProviderResolver
	sessions  domain.SessionRepository
}

// NewAPI initializes the HTTP API.
func NewAPI(
	tokens *services.TokenService,
	claims *services.ClaimService,
	aggregate *services.AggregateService,
	providers domain.ProviderResolver,
	sessions domain.SessionRepository,
) *API {
	return &API{
		tokens:    tokens,
		claims:    claims,
		aggregate: aggregate,
		providers: providers,
		sessions:  sessions,
	}
}

// RegisterRoutes registers all provider routes. Responses carry a permissive
// cross-origin policy for the browser-hosted dashboard.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.Use(echomw.CORS())

	g := e.Group("/v1/providers", SessionAuth(a.sessions))
	g.POST("/:provider/auth/url", a.GetAuthURLHandler)
	g.POST("/:provider/auth/exchange", a.ExchangeCodeHandler)
	g.POST("/solaredge/auth/validate", a.ValidateAPIKeyHandler)
	g.POST("/wallbox/auth/login", a.PasswordLoginHandler)
	g.GET("/:provider/devices", a.ListDevicesHandler)
	g.POST("/:provider/devices/claim", a.ClaimDeviceHandler)
	g.POST("/:provider/devices/release", a.ReleaseDeviceHandler)
	g.GET("/:provider/telemetry", a.TelemetryHandler)
	g.GET("/:provider/status", a.StatusHandler)
	g.DELETE("/:provider", a.DisconnectHandler)
}

type authURLRequest struct {
	RedirectURI string `json:"redirect_uri"`
}

// GetAuthURLHandler returns the vendor authorization URL the user is sent to.
func (a *API) GetAuthURLHandler(c echo.Context) error {
	var req authURLRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	provider, err := a.providers.Get(c.Param("provider"))
	if err != nil {
		return writeError(c, err)
	}
	authURL, err := provider.BeginAuthorization(c.Request().Context(), userID(c), req.RedirectURI)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"auth_url": authURL})
}

type exchangeCodeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// ExchangeCodeHandler completes an authorization: it exchanges the code for a
// token pair and persists the credential. A failed exchange leaves the
// credential store untouched.
func (a *API) ExchangeCodeHandler(c echo.Context) error {
	var req exchangeCodeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return badRequest(c, "code is required")
	}
	provider, err := a.providers.Get(c.Param("provider"))
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	cred, err := provider.CompleteAuthorization(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return writeError(c, err)
	}
	if err := a.tokens.StoreCredential(ctx, userID(c), cred); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type validateAPIKeyRequest struct {
	APIKey string `json:"api_key"`
	SiteID int64  `json:"site_id"`
}

// ValidateAPIKeyHandler probes the API-key vendor's site before persisting
// the key. A vendor-side 403 surfaces as invalid credentials so the user
// knows to re-check their key, not to retry.
func (a *API) ValidateAPIKeyHandler(c echo.Context) error {
	var req validateAPIKeyRequest
	if err := c.Bind(&req); err != nil || req.APIKey == "" || req.SiteID == 0 {
		return badRequest(c, "api_key and site_id are required")
	}
	provider, err := a.providers.Get(domain.ProviderSolarEdge)
	if err != nil {
		return writeError(c, err)
	}
	validator, ok := provider.(domain.APIKeyAuthenticator)
	if !ok {
		return writeError(c, herrors.ErrUnsupportedOperation)
	}

	ctx := c.Request().Context()
	site, err := validator.ValidateAPIKey(ctx, req.APIKey, req.SiteID)
	if err != nil {
		return writeError(c, err)
	}

	cred := &domain.Credential{
		Provider:     domain.ProviderSolarEdge,
		AccessSecret: req.APIKey,
		Extra: map[string]string{
			domain.ExtraSiteID:    strconv.FormatInt(site.SiteID, 10),
			domain.ExtraSiteName:  site.Name,
			domain.ExtraPeakPower: strconv.FormatFloat(site.PeakPowerKW, 'f', -1, 64),
		},
	}
	if err := a.tokens.StoreCredential(ctx, userID(c), cred); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "site": site})
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordLoginHandler authenticates against the username/password vendor and
// persists the resulting token pair. The password is forwarded, never stored.
func (a *API) PasswordLoginHandler(c echo.Context) error {
	var req passwordLoginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}
	provider, err := a.providers.Get(domain.ProviderWallbox)
	if err != nil {
		return writeError(c, err)
	}
	authenticator, ok := provider.(domain.PasswordAuthenticator)
	if !ok {
		return writeError(c, herrors.ErrUnsupportedOperation)
	}

	ctx := c.Request().Context()
	cred, err := authenticator.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	if err := a.tokens.StoreCredential(ctx, userID(c), cred); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// ListDevicesHandler lists the provider's devices annotated with claim state.
func (a *API) ListDevicesHandler(c echo.Context) error {
	providerName := c.Param("provider")
	provider, err := a.providers.Get(providerName)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	cred, err := a.tokens.GetValidCredential(ctx, userID(c), providerName)
	if err != nil {
		return writeError(c, err)
	}
	descriptors, err := provider.ListDevices(ctx, cred)
	if err != nil {
		return writeError(c, err)
	}
	descriptors, err = a.claims.Annotate(ctx, providerName, descriptors)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"devices": descriptors})
}

type claimDeviceRequest struct {
	DeviceID string            `json:"device_id"`
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata"`
}

// ClaimDeviceHandler claims a device for the caller. Losing the claim race
// returns a conflict; the user must pick a different device.
func (a *API) ClaimDeviceHandler(c echo.Context) error {
	var req claimDeviceRequest
	if err := c.Bind(&req); err != nil || req.DeviceID == "" {
		return badRequest(c, "device_id is required")
	}
	device, err := a.claims.Claim(c.Request().Context(), userID(c), c.Param("provider"),
		req.DeviceID, req.Name, domain.DeviceKind(req.Kind), req.Metadata)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "device": device})
}

type releaseDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// ReleaseDeviceHandler releases the caller's claim on a device.
func (a *API) ReleaseDeviceHandler(c echo.Context) error {
	var req releaseDeviceRequest
	if err := c.Bind(&req); err != nil || req.DeviceID == "" {
		return badRequest(c, "device_id is required")
	}
	if err := a.claims.Release(c.Request().Context(), userID(c), c.Param("provider"), req.DeviceID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// TelemetryHandler returns the aggregated telemetry summary. Per-device
// failures are annotations on a successful response, never an overall error.
func (a *API) TelemetryHandler(c echo.Context) error {
	summary, err := a.aggregate.Summarize(c.Request().Context(), userID(c), c.Param("provider"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"system":         summary,
		"arrays":         summary.Arrays,
		"failed_devices": summary.FailedDevices,
	})
}

// StatusHandler reports whether the provider is connected.
func (a *API) StatusHandler(c echo.Context) error {
	if _, err := a.providers.Get(c.Param("provider")); err != nil {
		return writeError(c, err)
	}
	connected, err := a.tokens.Connected(c.Request().Context(), userID(c), c.Param("provider"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"connected": connected})
}

// DisconnectHandler deletes the stored credential for the provider.
func (a *API) DisconnectHandler(c echo.Context) error {
	if _, err := a.providers.Get(c.Param("provider")); err != nil {
		return writeError(c, err)
	}
	if err := a.tokens.Disconnect(c.Request().Context(), userID(c), c.Param("provider")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_request", "message": message})
}

// writeError maps core errors onto HTTP responses. Vendor detail is logged
// server-side only; clients get a generic message so vendor internals and
// secrets never leak through responses.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, herrors.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	case errors.Is(err, herrors.ErrNotConnected):
		return c.JSON(http.StatusConflict, map[string]string{"error": "not_connected"})
	case errors.Is(err, herrors.ErrNeedsReauthorization):
		return c.JSON(http.StatusConflict, map[string]string{"error": "needs_reauthorization"})
	case errors.Is(err, herrors.ErrNoDevicesClaimed):
		return c.JSON(http.StatusConflict, map[string]string{"error": "no_devices_claimed"})
	case errors.Is(err, herrors.ErrAlreadyClaimed):
		return c.JSON(http.StatusConflict, map[string]string{"error": "already_claimed"})
	case errors.Is(err, herrors.ErrNotOwner):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "not_owner"})
	case errors.Is(err, herrors.ErrInvalidCredentials):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": "invalid_credentials", "message": "check your credentials",
		})
	case errors.Is(err, herrors.ErrUnknownProvider):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown_provider"})
	case errors.Is(err, herrors.ErrUnsupportedOperation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported_operation"})
	case errors.Is(err, herrors.ErrProviderNotConfigured):
		log.Error().Err(err).Msg("provider client credentials missing")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "provider_not_configured"})
	default:
		if pe, ok := herrors.AsProviderError(err); ok {
			log.Error().Str("provider", pe.Provider).Int("status", pe.StatusCode).
				Str("detail", pe.Detail).Msg("vendor request failed")
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "provider_error", "message": "the provider could not be reached, try again later",
			})
		}
		log.Error().Err(err).Msg("unhandled error")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	}
}
