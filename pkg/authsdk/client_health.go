package authsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// GetLiveness checks if the gate process is up.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks the gate's dependencies. A degraded gate answers 503
// with its report; the report is returned alongside an ErrorCodeNotReady
// error naming the failing checks.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if resp.StatusCode != http.StatusServiceUnavailable {
		if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
			return nil, err
		}
		return &health, nil
	}

	defer resp.Body.Close()
	notReady := &APIError{StatusCode: resp.StatusCode, Code: ErrorCodeNotReady, Description: "gate unavailable"}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status == "" {
		return nil, notReady
	}
	if failing := health.Failing(); len(failing) > 0 {
		notReady.Description = strings.Join(failing, "; ")
	}
	return &health, notReady
}

// Failing lists the readiness checks that reported an error, as
// "name: detail". Disabled checks are not failures.
func (h *HealthResponse) Failing() []string {
	if h == nil || h.Checks == nil {
		return nil
	}
	var out []string
	for _, c := range []struct{ name, state string }{
		{"database", h.Checks.Database},
		{"signer", h.Checks.Signer},
		{"oauth", h.Checks.OAuth},
	} {
		if c.state != "" && c.state != "ok" && c.state != "disabled" {
			out = append(out, c.name+": "+c.state)
		}
	}
	return out
}
