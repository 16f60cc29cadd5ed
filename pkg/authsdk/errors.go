package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the gate.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeAccountInactive    = "account_inactive"
	ErrorCodeUnauthenticated    = "unauthenticated"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
	ErrorCodeNotMaster          = "not_master"
	ErrorCodeSourceNotAllowed   = "source_not_allowed"
	ErrorCodeInvalidTarget      = "invalid_target"
	ErrorCodeNotImpersonating   = "not_impersonating"
	ErrorCodeStoreUnavailable   = "store_unavailable"
	ErrorCodeNotReady           = "not_ready"
	ErrorCodeServerError        = "server_error"
)

// APIError is a non-2xx response from the gate.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
	RedirectTo  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on the error code, so errors.Is(err, &APIError{Code: ...})
// works without comparing status or description.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Temporary reports whether retrying later may succeed. Callers keep their
// last-known state on temporary errors.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsTemporary reports whether err is a transient failure: a temporary API
// error or anything that isn't an API error at all (transport, decoding).
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
			RedirectTo:  errResp.RedirectTo,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
