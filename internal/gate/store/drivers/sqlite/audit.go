package sqlite

import (
	"context"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

type auditRepo struct {
	q *queries
}

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	return r.q.InsertAuditEntry(ctx, auditRow{
		ID:         e.ID,
		Action:     string(e.Action),
		Outcome:    string(e.Outcome),
		ActorID:    e.ActorID,
		ActorRole:  string(e.ActorRole),
		FromRole:   string(e.FromRole),
		ToRole:     string(e.ToRole),
		Reason:     e.Reason,
		DenyReason: e.DenyReason,
		OccurredAt: toMillis(e.Timestamp),
		SourceIP:   e.SourceIP,
		UserAgent:  e.UserAgent,
	})
}

func (r *auditRepo) List(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
	rows, err := r.q.ListAuditEntries(ctx, f.ActorID, string(f.Action), f.Before, toMillis(f.Since), f.PageSize())
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapAuditEntry(row))
	}
	return out, nil
}

func (r *auditRepo) Count(ctx context.Context, f store.AuditFilter) (int, error) {
	n, err := r.q.CountAuditEntries(ctx, f.ActorID, string(f.Action), f.Before, toMillis(f.Since))
	return int(n), err
}

// Roles are stored verbatim; an empty from/to stays empty rather than
// collapsing to PUBLIC.
func mapAuditEntry(row auditRow) domain.AuditEntry {
	return domain.AuditEntry{
		ID:         row.ID,
		Action:     domain.AuditAction(row.Action),
		Outcome:    domain.AuditOutcome(row.Outcome),
		ActorID:    row.ActorID,
		ActorRole:  rbac.Role(row.ActorRole),
		FromRole:   rbac.Role(row.FromRole),
		ToRole:     rbac.Role(row.ToRole),
		Reason:     row.Reason,
		DenyReason: row.DenyReason,
		Timestamp:  fromMillis(row.OccurredAt),
		SourceIP:   row.SourceIP,
		UserAgent:  row.UserAgent,
	}
}
