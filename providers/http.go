package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	herrors "github.com/heliowatt/heliowatt/errors"
)

// defaultTimeout bounds every vendor call so one unresponsive vendor cannot
// stall an entire aggregation request.
const defaultTimeout = 15 * time.Second

// maxErrorBodyBytes limits how much of a vendor error body is kept for
// diagnostics.
const maxErrorBodyBytes = 2048

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// doJSON performs the request, enforces a 2xx status and decodes the body into
// out. Non-2xx responses become ProviderError carrying the vendor's status and
// a bounded slice of the raw body. Never retries.
func doJSON(client *http.Client, provider string, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return &herrors.ProviderError{Provider: provider, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return herrors.NewProviderError(provider, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &herrors.ProviderError{Provider: provider, StatusCode: resp.StatusCode,
			Detail: fmt.Sprintf("malformed response body: %v", err)}
	}
	return nil
}

// getJSON is the common GET + bearer-token + decode path of the data endpoints.
func getJSON(ctx context.Context, client *http.Client, provider, url, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(client, provider, req, out)
}
