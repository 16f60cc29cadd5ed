package sqlite

import (
	"context"
	"database/sql"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so repositories run the same
// statements inside and outside a transaction.
type dbtx interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

const identityColumns = `id, email, name, password_hash, role, active, registration_complete, institution_id, created_at, updated_at`

type identityRow struct {
	ID                   string
	Email                string
	Name                 string
	PasswordHash         string
	Role                 string
	Active               bool
	RegistrationComplete bool
	InstitutionID        sql.NullString
	CreatedAt            int64
	UpdatedAt            int64
}

func scanIdentity(row interface{ Scan(...any) error }) (identityRow, error) {
	var i identityRow
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.PasswordHash,
		&i.Role,
		&i.Active,
		&i.RegistrationComplete,
		&i.InstitutionID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getIdentityByID = `SELECT ` + identityColumns + ` FROM identities WHERE id = ?`

func (q *queries) GetIdentityByID(ctx context.Context, id string) (identityRow, error) {
	return scanIdentity(q.db.QueryRowContext(ctx, getIdentityByID, id))
}

const getIdentityByEmail = `SELECT ` + identityColumns + ` FROM identities WHERE email = ?`

func (q *queries) GetIdentityByEmail(ctx context.Context, email string) (identityRow, error) {
	return scanIdentity(q.db.QueryRowContext(ctx, getIdentityByEmail, email))
}

const createIdentity = `INSERT INTO identities (` + identityColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *queries) CreateIdentity(ctx context.Context, arg identityRow) error {
	_, err := q.db.ExecContext(ctx, createIdentity,
		arg.ID,
		arg.Email,
		arg.Name,
		arg.PasswordHash,
		arg.Role,
		arg.Active,
		arg.RegistrationComplete,
		arg.InstitutionID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateIdentityRegistration = `UPDATE identities SET registration_complete = ?, updated_at = ? WHERE id = ?`

func (q *queries) UpdateIdentityRegistration(ctx context.Context, id string, complete bool, now int64) (int64, error) {
	return q.execRows(ctx, updateIdentityRegistration, complete, now, id)
}

const updateIdentityActive = `UPDATE identities SET active = ?, updated_at = ? WHERE id = ?`

func (q *queries) UpdateIdentityActive(ctx context.Context, id string, active bool, now int64) (int64, error) {
	return q.execRows(ctx, updateIdentityActive, active, now, id)
}

const countIdentitiesByRole = `SELECT COUNT(*) FROM identities WHERE role = ?`

func (q *queries) CountIdentitiesByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countIdentitiesByRole, role).Scan(&n)
	return n, err
}

func (q *queries) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const auditColumns = `id, action, outcome, actor_id, actor_role, from_role, to_role, reason, deny_reason, occurred_at, source_ip, user_agent`

type auditRow struct {
	ID         string
	Action     string
	Outcome    string
	ActorID    string
	ActorRole  string
	FromRole   string
	ToRole     string
	Reason     string
	DenyReason string
	OccurredAt int64
	SourceIP   string
	UserAgent  string
}

const insertAuditEntry = `INSERT INTO audit_entries (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *queries) InsertAuditEntry(ctx context.Context, arg auditRow) error {
	_, err := q.db.ExecContext(ctx, insertAuditEntry,
		arg.ID,
		arg.Action,
		arg.Outcome,
		arg.ActorID,
		arg.ActorRole,
		arg.FromRole,
		arg.ToRole,
		arg.Reason,
		arg.DenyReason,
		arg.OccurredAt,
		arg.SourceIP,
		arg.UserAgent,
	)
	return err
}

// auditWhere builds the shared filter for listing and counting. Ids are
// ULIDs so lexical order is creation order.
func auditWhere(actorID, action, before string, since int64) (string, []any) {
	where := ` WHERE 1 = 1`
	var args []any
	if actorID != "" {
		where += ` AND actor_id = ?`
		args = append(args, actorID)
	}
	if action != "" {
		where += ` AND action = ?`
		args = append(args, action)
	}
	if before != "" {
		where += ` AND id < ?`
		args = append(args, before)
	}
	if since > 0 {
		where += ` AND occurred_at >= ?`
		args = append(args, since)
	}
	return where, args
}

func (q *queries) ListAuditEntries(ctx context.Context, actorID, action, before string, since int64, limit int) ([]auditRow, error) {
	where, args := auditWhere(actorID, action, before, since)
	args = append(args, limit)

	rows, err := q.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_entries`+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []auditRow
	for rows.Next() {
		var a auditRow
		if err := rows.Scan(
			&a.ID,
			&a.Action,
			&a.Outcome,
			&a.ActorID,
			&a.ActorRole,
			&a.FromRole,
			&a.ToRole,
			&a.Reason,
			&a.DenyReason,
			&a.OccurredAt,
			&a.SourceIP,
			&a.UserAgent,
		); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *queries) CountAuditEntries(ctx context.Context, actorID, action, before string, since int64) (int64, error) {
	where, args := auditWhere(actorID, action, before, since)
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&n)
	return n, err
}
