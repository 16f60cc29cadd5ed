package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories so a Tx-scoped Store has the same shape as the
// root one.
type Store interface {
	Identities() Identities
	AuditEntries() AuditEntries

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Identities interface {
	GetByID(ctx context.Context, id string) (domain.Identity, error)

	// GetByEmail matches on the normalised email.
	GetByEmail(ctx context.Context, email string) (domain.Identity, error)

	// Create inserts an identity; ErrAlreadyExists on a duplicate email.
	Create(ctx context.Context, i domain.Identity) error

	SetRegistrationComplete(ctx context.Context, id string, complete bool) error
	SetActive(ctx context.Context, id string, active bool) error

	CountByRole(ctx context.Context, role rbac.Role) (int, error)
}

// Audit listing page sizes.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// AuditFilter narrows an audit listing. Zero values mean no constraint.
type AuditFilter struct {
	ActorID string
	Action  domain.AuditAction
	// Before is an entry id cursor; only older entries are returned.
	Before string
	Since  time.Time
	Limit  int
}

// PageSize is Limit clamped to (0, MaxAuditLimit], defaulting to
// DefaultAuditLimit.
func (f AuditFilter) PageSize() int {
	if f.Limit <= 0 {
		return DefaultAuditLimit
	}
	return min(f.Limit, MaxAuditLimit)
}

// AuditEntries is append-only: there is deliberately no update or delete.
type AuditEntries interface {
	Append(ctx context.Context, e domain.AuditEntry) error

	// List returns entries newest first.
	List(ctx context.Context, f AuditFilter) ([]domain.AuditEntry, error)

	Count(ctx context.Context, f AuditFilter) (int, error)
}
