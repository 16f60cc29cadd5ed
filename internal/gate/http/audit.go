package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/idx"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// AuditHandler lists the role switch audit log.
type AuditHandler struct {
	Store store.Store
}

// ServeHTTP godoc
//
//	@Summary		Role switch audit log
//	@Description	Returns granted and denied role switch and revert attempts, newest first.
//	@Description	Pass nextCursor back as "before" for the next page.
//	@Tags			Impersonation
//	@Produce		json
//	@Param			actor	query		string	false	"Filter by actor id"
//	@Param			action	query		string	false	"Filter by action"	Enums(switch, revert)
//	@Param			before	query		string	false	"Cursor from a previous page"
//	@Param			limit	query		int		false	"Page size (max 500)"
//	@Success		200		{object}	authsdk.AuditListResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/api/master/audit [get].
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.AuditFilter{ActorID: q.Get("actor")}
	if raw := q.Get("before"); raw != "" {
		cursor, err := idx.Parse(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "before must be a cursor from a previous page.")
			return
		}
		f.Before = cursor.String()
	}
	switch a := domain.AuditAction(q.Get("action")); a {
	case "":
	case domain.AuditActionSwitch, domain.AuditActionRevert:
		f.Action = a
	default:
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "action must be switch or revert.")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "limit must be a positive integer.")
			return
		}
		f.Limit = n
	}

	entries, err := h.Store.AuditEntries().List(r.Context(), f)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to list audit entries", "error", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, authsdk.ErrorCodeStoreUnavailable, "Try again shortly.")
		return
	}

	resp := authsdk.AuditListResponse{Entries: make([]authsdk.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, authsdk.AuditEntry{
			ID:         e.ID,
			Action:     string(e.Action),
			Outcome:    string(e.Outcome),
			ActorID:    e.ActorID,
			ActorRole:  e.ActorRole,
			FromRole:   e.FromRole,
			ToRole:     e.ToRole,
			Reason:     e.Reason,
			DenyReason: e.DenyReason,
			Timestamp:  e.Timestamp,
			SourceIP:   e.SourceIP,
			UserAgent:  e.UserAgent,
		})
	}
	if len(entries) > 0 && len(entries) == f.PageSize() {
		resp.NextCursor = entries[len(entries)-1].ID
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
