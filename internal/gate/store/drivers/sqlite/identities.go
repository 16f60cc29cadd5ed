package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

type identitiesRepo struct {
	q *queries
}

func (r *identitiesRepo) GetByID(ctx context.Context, id string) (domain.Identity, error) {
	row, err := r.q.GetIdentityByID(ctx, id)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return mapIdentity(row), nil
}

func (r *identitiesRepo) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row, err := r.q.GetIdentityByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return mapIdentity(row), nil
}

func (r *identitiesRepo) Create(ctx context.Context, i domain.Identity) error {
	now := time.Now()
	created := i.CreatedAt
	if created.IsZero() {
		created = now
	}

	err := r.q.CreateIdentity(ctx, identityRow{
		ID:                   i.ID,
		Email:                domain.NormalizeEmail(i.Email),
		Name:                 i.Name,
		PasswordHash:         i.PasswordHash,
		Role:                 string(rbac.ParseRole(string(i.Role))),
		Active:               i.Active,
		RegistrationComplete: i.RegistrationComplete,
		InstitutionID:        mapStringNull(i.InstitutionID),
		CreatedAt:            toMillis(created),
		UpdatedAt:            toMillis(now),
	})
	return mapConstraint(err)
}

func (r *identitiesRepo) SetRegistrationComplete(ctx context.Context, id string, complete bool) error {
	n, err := r.q.UpdateIdentityRegistration(ctx, id, complete, toMillis(time.Now()))
	return affected(n, err)
}

func (r *identitiesRepo) SetActive(ctx context.Context, id string, active bool) error {
	n, err := r.q.UpdateIdentityActive(ctx, id, active, toMillis(time.Now()))
	return affected(n, err)
}

func (r *identitiesRepo) CountByRole(ctx context.Context, role rbac.Role) (int, error) {
	n, err := r.q.CountIdentitiesByRole(ctx, string(role))
	return int(n), err
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapIdentity(row identityRow) domain.Identity {
	return domain.Identity{
		ID:                   row.ID,
		Email:                row.Email,
		Name:                 row.Name,
		PasswordHash:         row.PasswordHash,
		Role:                 rbac.ParseRole(row.Role),
		Active:               row.Active,
		RegistrationComplete: row.RegistrationComplete,
		InstitutionID:        mapNullString(row.InstitutionID),
		CreatedAt:            fromMillis(row.CreatedAt),
		UpdatedAt:            fromMillis(row.UpdatedAt),
	}
}
