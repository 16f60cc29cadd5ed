package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/schoolgate/internal/gate/service"
	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// LoginHandler serves the identity-source entry points.
type LoginHandler struct {
	SessionService *service.SessionService
	DevHosts       *httpx.DevHosts
	Cookies        CookieConfig
}

// HandleLogin godoc
//
//	@Summary		Sign in with email and password
//	@Description	Checks the credentials against the identity store and issues a credentials session.
//	@Description	The token is returned in the body and set as the session-token cookie.
//	@Tags			Session
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			email		formData	string	true	"Email address"
//	@Param			password	formData	string	true	"Password"
//	@Param			callbackUrl	formData	string	false	"Path to land on after signing in"
//	@Success		200			{object}	authsdk.LoginResponse
//	@Failure		400			{object}	authsdk.ErrorResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Failure		403			{object}	authsdk.ErrorResponse
//	@Failure		429			{object}	authsdk.ErrorResponse
//	@Router			/api/auth/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Malformed form body.")
		return
	}

	issued, err := h.SessionService.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		writeLoginError(w, r, err)
		return
	}

	h.Cookies.set(w, issued.Claims, issued.Token)
	httpx.WriteJSON(w, http.StatusOK, loginResponse(issued, r.PostFormValue("callbackUrl"), h.DevHosts.Match(r.Host)))
}

// HandleDevLogin godoc
//
//	@Summary		Developer bypass sign-in
//	@Description	Issues a developer session for an existing identity without a password.
//	@Description	Only served on configured development hosts; everywhere else it is 404.
//	@Tags			Session
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			email	formData	string	true	"Email address"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Router			/api/auth/dev-login [post].
func (h *LoginHandler) HandleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.DevHosts.Match(r.Host) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Not found.")
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Malformed form body.")
		return
	}

	issued, err := h.SessionService.DevLogin(r.Context(), r.PostFormValue("email"))
	if err != nil {
		writeLoginError(w, r, err)
		return
	}

	h.Cookies.set(w, issued.Claims, issued.Token)
	httpx.WriteJSON(w, http.StatusOK, loginResponse(issued, r.PostFormValue("callbackUrl"), true))
}

// HandleOAuthCallback godoc
//
//	@Summary		Exchange an OAuth identity assertion for a session
//	@Description	Verifies an EdDSA-signed assertion from the OAuth provider and issues an oauth session
//	@Description	for the identity with the asserted email. The token is set as the oauth-session cookie.
//	@Tags			Session
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			assertion	formData	string	true	"Signed identity assertion"
//	@Success		200			{object}	authsdk.LoginResponse
//	@Failure		401			{object}	authsdk.ErrorResponse
//	@Failure		403			{object}	authsdk.ErrorResponse
//	@Failure		404			{object}	authsdk.ErrorResponse	"OAuth not configured"
//	@Router			/api/auth/oauth/callback [post].
func (h *LoginHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Malformed form body.")
		return
	}

	issued, err := h.SessionService.OAuthExchange(r.Context(), r.PostFormValue("assertion"))
	if err != nil {
		writeLoginError(w, r, err)
		return
	}

	h.Cookies.set(w, issued.Claims, issued.Token)
	httpx.WriteJSON(w, http.StatusOK, loginResponse(issued, r.PostFormValue("callbackUrl"), h.DevHosts.Match(r.Host)))
}

// HandleLogout godoc
//
//	@Summary		Sign out
//	@Description	Clears both session cookies. Bearer tokens simply expire.
//	@Tags			Session
//	@Success		204
//	@Router			/api/auth/logout [post].
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.clear(w, httpx.CookieSession, httpx.CookieOAuth)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "Invalid email or password.")
	case errors.Is(err, service.ErrInvalidAssertion):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_assertion", "The identity assertion could not be verified.")
	case errors.Is(err, service.ErrUnknownIdentity):
		httpx.WriteError(w, http.StatusForbidden, "unknown_identity", "No account exists for this identity.")
	case errors.Is(err, service.ErrAccountInactive):
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeAccountInactive, "This account has been deactivated.")
	case errors.Is(err, service.ErrOAuthDisabled):
		httpx.WriteError(w, http.StatusNotFound, "oauth_disabled", "OAuth sign-in is not configured.")
	case errors.Is(err, service.ErrStoreUnavailable):
		slogx.FromContext(r.Context()).Error("login: store unavailable", "error", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, authsdk.ErrorCodeStoreUnavailable, "Try again shortly.")
	default:
		slogx.FromContext(r.Context()).Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Internal server error.")
	}
}

func loginResponse(issued service.Issued, callback string, devHost bool) authsdk.LoginResponse {
	c := issued.Claims
	flags := rbac.Flags{
		Authenticated:        true,
		RegistrationComplete: c.RegistrationComplete,
		Developer:            c.Source == jwtx.SourceDeveloper,
		DevHost:              devHost,
	}

	resp := authsdk.LoginResponse{
		Token:      issued.Token,
		Source:     string(c.Source),
		Role:       c.Role,
		RedirectTo: rbac.Resolve(c.Role, flags, localPath(callback)),
	}
	if c.ExpiresAt != nil {
		resp.ExpiresAt = c.ExpiresAt.Unix()
	}
	return resp
}

// localPath keeps callback only when it is a same-origin path. Anything
// else lands on the root, which Resolve sends to the role's home.
func localPath(callback string) string {
	if !strings.HasPrefix(callback, "/") || strings.HasPrefix(callback, "//") || strings.ContainsRune(callback, '\\') {
		return "/"
	}
	return callback
}
