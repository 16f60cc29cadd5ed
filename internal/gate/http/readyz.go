package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness check
//	@Description	Checks the identity store, the session signer and, when configured, the OAuth key set.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	signer jwtx.Signer,
	oauthKeys *jwtx.KeySet,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
			OAuth:    "disabled",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		degrade := func() {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			degrade()
		}

		if signer == nil {
			checks.Signer = "error: no signer"
			degrade()
		} else if err := signer.Validate(); err != nil {
			checks.Signer = "error: " + err.Error()
			degrade()
		}

		if oauthKeys != nil {
			checks.OAuth = "ok"
			if !oauthKeys.IsReady() {
				checks.OAuth = "error: no keys loaded"
				degrade()
			}
		}

		httpx.WriteJSON(w, statusCode, authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
