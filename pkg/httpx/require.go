package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// RequireSession rejects requests the Gate let through without claims. Use it
// on public-prefix endpoints that still need a caller, such as the role
// switch API.
func RequireSession() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ClaimsFromContext(r.Context()); !ok {
				WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error:            ReasonUnauthenticated,
					ErrorDescription: "Sign in to continue.",
					RedirectTo:       rbac.LoginRedirect(r.URL.RequestURI()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole the caller must hold one of roles. MASTER always passes.
func RequireRole(roles ...rbac.Role) Middleware {
	want := make(map[rbac.Role]struct{}, len(roles))
	for _, r := range roles {
		want[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, ReasonUnauthenticated, "Sign in to continue.")
				return
			}
			if _, allowed := want[c.Role]; allowed || c.Role == rbac.RoleMaster {
				next.ServeHTTP(w, r)
				return
			}
			WriteJSON(w, http.StatusForbidden, ErrorResponse{
				Error:            ReasonForbidden,
				ErrorDescription: "You do not have access to this resource.",
				RedirectTo:       rbac.UnauthorizedPath,
			})
		})
	}
}
