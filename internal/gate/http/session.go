package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/schoolgate/internal/gate/service"
	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/session"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// SessionHandler reports, and keeps fresh, the caller's session.
type SessionHandler struct {
	SessionService *service.SessionService
	Verifier       *session.Verifier
	DevHosts       *httpx.DevHosts
	Cookies        CookieConfig
}

// HandleSession godoc
//
//	@Summary		Current session
//	@Description	Reconciles every session token on the request and returns the most recently issued one.
//	@Description	With ?source= only sessions from that identity source count. The session is re-checked
//	@Description	against the identity store; if the role or registration state changed, a new token is set
//	@Description	as a cookie and returned in the X-Session-Token header. Deactivated accounts are signed out.
//	@Tags			Session
//	@Produce		json
//	@Param			source	query		string	false	"Identity source"	Enums(credentials, oauth, developer)
//	@Success		200		{object}	authsdk.SessionResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		503		{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/api/auth/session [get].
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	opts := session.Options{AllowDeveloper: h.DevHosts.Match(r.Host)}
	if provider := r.URL.Query().Get("source"); provider != "" {
		sources, ok := session.SourcesFor(provider)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Unknown identity source.")
			return
		}
		opts.Sources = sources
	}

	claims, origin, ok := session.Reconcile(h.Verifier, opts, httpx.Candidates(r)...)
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{Authenticated: false})
		return
	}

	res, err := h.SessionService.Refresh(r.Context(), claims)
	switch {
	case errors.Is(err, service.ErrAccountInactive):
		slogx.FromContext(r.Context()).Info("session ended: account inactive", "user_id", claims.Subject)
		h.Cookies.clear(w, httpx.CookieSession, httpx.CookieOAuth)
		httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{Authenticated: false})
		return
	case errors.Is(err, service.ErrStoreUnavailable):
		slogx.FromContext(r.Context()).Error("session refresh: store unavailable", "error", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, authsdk.ErrorCodeStoreUnavailable, "Try again shortly.")
		return
	case err != nil:
		slogx.FromContext(r.Context()).Error("session refresh failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Internal server error.")
		return
	}

	if res.Issued != nil {
		if origin == session.OriginBearer {
			w.Header().Set(authsdk.SessionTokenHeader, res.Issued.Token)
		} else {
			h.Cookies.set(w, res.Issued.Claims, res.Issued.Token)
		}
	}

	resp := sessionResponse(res.Claims)
	resp.Reissued = res.Issued != nil
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleCompleteRegistration godoc
//
//	@Summary		Finish PARENT onboarding
//	@Description	Marks the caller's registration complete and re-issues the session.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	authsdk.LoginResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		409	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/api/auth/registration/complete [post].
func (h *SessionHandler) HandleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	issued, err := h.SessionService.CompleteRegistration(r.Context(), claims)
	switch {
	case errors.Is(err, service.ErrRegistrationNotPending):
		httpx.WriteError(w, http.StatusConflict, "registration_not_pending", "Registration is already complete.")
		return
	case errors.Is(err, service.ErrUnknownIdentity):
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeAccountInactive, "This account no longer exists.")
		return
	case errors.Is(err, service.ErrStoreUnavailable):
		slogx.FromContext(r.Context()).Error("complete registration: store unavailable", "error", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, authsdk.ErrorCodeStoreUnavailable, "Try again shortly.")
		return
	case err != nil:
		slogx.FromContext(r.Context()).Error("complete registration failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Internal server error.")
		return
	}

	h.Cookies.set(w, issued.Claims, issued.Token)
	httpx.WriteJSON(w, http.StatusOK, loginResponse(issued, rbac.Home(issued.Claims.Role), h.DevHosts.Match(r.Host)))
}

func sessionResponse(c jwtx.Claims) authsdk.SessionResponse {
	resp := authsdk.SessionResponse{
		Authenticated:        true,
		Subject:              c.Subject,
		Email:                c.Email,
		Name:                 c.Name,
		Role:                 c.Role,
		RegistrationComplete: c.RegistrationComplete,
		Source:               string(c.Source),
		InstitutionID:        c.InstitutionID,
		IssuedAt:             c.IssuedAtTime().Unix(),
		Home:                 rbac.Home(c.Role),
	}
	if c.ExpiresAt != nil {
		resp.ExpiresAt = c.ExpiresAt.Unix()
	}
	if imp := c.Impersonation; imp != nil && imp.Active {
		resp.Impersonation = &authsdk.ImpersonationInfo{
			Active:       true,
			OriginalRole: imp.OriginalRole,
			Reason:       imp.Reason,
		}
		if imp.SwitchedAt != nil {
			resp.Impersonation.SwitchedAt = imp.SwitchedAt.Unix()
		}
	}
	return resp
}
