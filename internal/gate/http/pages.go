package http

import (
	"net/http"

	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// PageResponse is what the placeholder pages render. The real pages are
// served by the web frontend.
type PageResponse struct {
	Path          string    `json:"path"`
	Area          string    `json:"area"`
	Role          rbac.Role `json:"role"`
	Home          string    `json:"home"`
	Authenticated bool      `json:"authenticated"`
	Impersonating bool      `json:"impersonating,omitempty"`
}

// PageHandler echoes the request path and the session the Gate attached.
func PageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		role := httpx.RoleFromContext(r.Context())

		area := rbac.PrefixOf(r.URL.EscapedPath())
		if area == "" {
			area = "public"
		}

		httpx.WriteJSON(w, http.StatusOK, PageResponse{
			Path:          r.URL.Path,
			Area:          area,
			Role:          role,
			Home:          rbac.Home(role),
			Authenticated: ok,
			Impersonating: ok && claims.Impersonating(),
		})
	}
}

// APINotFound answers unknown /api paths with the JSON envelope.
func APINotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "No such endpoint.")
	}
}
