package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/schoolgate/internal/gate/service"
	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// ImpersonationHandler serves the MASTER role switch API.
type ImpersonationHandler struct {
	ImpersonationService *service.ImpersonationService
	Cookies              CookieConfig
}

// HandleSwitch godoc
//
//	@Summary		Act as another role
//	@Description	Lets a MASTER session act as ADMIN, TEACHER or PARENT. Every attempt is audited.
//	@Description	A fresh token is returned and set as the cookie of the session's identity source.
//	@Description	Developer sessions cannot switch. Attempts are rate limited per MASTER.
//	@Tags			Impersonation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SwitchRoleRequest	true	"Target role and reason"
//	@Success		200		{object}	authsdk.SwitchRoleResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		429		{object}	authsdk.ErrorResponse
//	@Failure		503		{object}	authsdk.ErrorResponse	"audit log unavailable"
//	@Security		BearerAuth
//	@Router			/api/auth/switch-role [post].
func (h *ImpersonationHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	var req authsdk.SwitchRoleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Request body must be JSON with a targetRole.")
		return
	}

	issued, err := h.ImpersonationService.SwitchRole(r.Context(), claims, req.TargetRole, req.Reason, requestMeta(r))
	if err != nil {
		writeImpersonationError(w, r, err)
		return
	}

	h.Cookies.set(w, issued.Claims, issued.Token)
	httpx.WriteJSON(w, http.StatusOK, authsdk.SwitchRoleResponse{
		Token:       issued.Token,
		CurrentRole: issued.Claims.Role,
		RedirectTo:  rbac.Home(issued.Claims.Role),
	})
}

// HandleRevert godoc
//
//	@Summary		Return to MASTER
//	@Description	Ends an active role switch. Never rate limited so a MASTER can always get back.
//	@Tags			Impersonation
//	@Produce		json
//	@Success		200	{object}	authsdk.SwitchRoleResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		409	{object}	authsdk.ErrorResponse	"not impersonating"
//	@Failure		503	{object}	authsdk.ErrorResponse	"audit log unavailable"
//	@Security		BearerAuth
//	@Router			/api/auth/revert-role [post].
func (h *ImpersonationHandler) HandleRevert(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	issued, err := h.ImpersonationService.Revert(r.Context(), claims, requestMeta(r))
	if err != nil {
		writeImpersonationError(w, r, err)
		return
	}

	h.Cookies.set(w, issued.Claims, issued.Token)
	httpx.WriteJSON(w, http.StatusOK, authsdk.SwitchRoleResponse{
		Token:       issued.Token,
		CurrentRole: issued.Claims.Role,
		RedirectTo:  rbac.Home(issued.Claims.Role),
	})
}

// HandleStatus godoc
//
//	@Summary		Role switch status
//	@Description	Reports whether the session is impersonating and which roles it may switch to.
//	@Tags			Impersonation
//	@Produce		json
//	@Success		200	{object}	authsdk.SwitchStatus
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/api/auth/switch-status [get].
func (h *ImpersonationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())
	st := h.ImpersonationService.Status(claims)

	httpx.WriteJSON(w, http.StatusOK, authsdk.SwitchStatus{
		CurrentRole:  st.CurrentRole,
		HasSwitched:  st.HasSwitched,
		OriginalRole: st.OriginalRole,
		CanSwitch:    st.CanSwitch,
		ValidRoles:   st.ValidRoles,
		Reason:       st.Reason,
		SwitchedAt:   st.SwitchedAt,
	})
}

func requestMeta(r *http.Request) service.Meta {
	return service.Meta{
		SourceIP:  httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func writeImpersonationError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		httpx.WriteTooManyRequests(w, limited.RetryAfter, httpx.RateLimitConfig{})
	case errors.Is(err, service.ErrNotMaster):
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeNotMaster, "Only MASTER sessions can switch roles.")
	case errors.Is(err, service.ErrSourceNotAllowed):
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeSourceNotAllowed, "This session cannot switch roles.")
	case errors.Is(err, service.ErrInvalidTarget):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidTarget, "Target role must be ADMIN, TEACHER or PARENT.")
	case errors.Is(err, service.ErrNotImpersonating):
		httpx.WriteError(w, http.StatusConflict, authsdk.ErrorCodeNotImpersonating, "The session is not acting as another role.")
	case errors.Is(err, service.ErrAuditUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "audit_unavailable", "The audit log is unavailable; no role change was made.")
	default:
		slogx.FromContext(r.Context()).Error("role change failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Internal server error.")
	}
}
