package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
)

// LivezHandler godoc
//
//	@Summary		Liveness check
//	@Description	Always 200 while the process is serving. Reports uptime and version.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
