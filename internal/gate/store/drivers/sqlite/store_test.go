package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/schoolgate/pkg/idx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestIdentities(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	parent := domain.Identity{
		ID:            idx.New().String(),
		Email:         "  Maria@Example.org ",
		Name:          "Maria",
		PasswordHash:  "argon2id$x",
		Role:          rbac.RoleParent,
		Active:        true,
		InstitutionID: "inst-1",
	}
	require.NoError(t, s.Identities().Create(ctx, parent))

	t.Run("lookup by normalised email", func(t *testing.T) {
		got, err := s.Identities().GetByEmail(ctx, "MARIA@example.org")
		require.NoError(t, err)
		require.Equal(t, parent.ID, got.ID)
		require.Equal(t, "maria@example.org", got.Email)
		require.Equal(t, rbac.RoleParent, got.Role)
		require.True(t, got.Active)
		require.False(t, got.RegistrationComplete)
		require.Equal(t, "inst-1", got.InstitutionID)
		require.False(t, got.CreatedAt.IsZero())
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := parent
		dup.ID = idx.New().String()
		require.ErrorIs(t, s.Identities().Create(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("unknown role stored as public", func(t *testing.T) {
		odd := domain.Identity{ID: idx.New().String(), Email: "odd@example.org", Role: rbac.Role("ROOT")}
		require.NoError(t, s.Identities().Create(ctx, odd))

		got, err := s.Identities().GetByID(ctx, odd.ID)
		require.NoError(t, err)
		require.Equal(t, rbac.RolePublic, got.Role)
		require.Empty(t, got.InstitutionID)
	})

	t.Run("updates", func(t *testing.T) {
		require.NoError(t, s.Identities().SetRegistrationComplete(ctx, parent.ID, true))
		require.NoError(t, s.Identities().SetActive(ctx, parent.ID, false))

		got, err := s.Identities().GetByID(ctx, parent.ID)
		require.NoError(t, err)
		require.True(t, got.RegistrationComplete)
		require.False(t, got.Active)
	})

	t.Run("missing identity", func(t *testing.T) {
		_, err := s.Identities().GetByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Identities().GetByEmail(ctx, "nobody@example.org")
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Identities().SetActive(ctx, "nope", true), store.ErrNotFound)
	})

	t.Run("count by role", func(t *testing.T) {
		n, err := s.Identities().CountByRole(ctx, rbac.RoleParent)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = s.Identities().CountByRole(ctx, rbac.RoleMaster)
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func TestAuditEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 5 {
		at := base.Add(time.Duration(i) * time.Minute)
		e := domain.AuditEntry{
			ID:        idx.NewAt(at).String(),
			Action:    domain.AuditActionSwitch,
			Outcome:   domain.AuditGranted,
			ActorID:   "master-1",
			ActorRole: rbac.RoleMaster,
			FromRole:  rbac.RoleMaster,
			ToRole:    rbac.RoleTeacher,
			Reason:    "support ticket",
			Timestamp: at,
			SourceIP:  "10.0.0.1",
			UserAgent: "test",
		}
		if i == 4 {
			e.Action = domain.AuditActionRevert
			e.ActorID = "master-2"
		}
		require.NoError(t, s.AuditEntries().Append(ctx, e))
		ids = append(ids, e.ID)
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := s.AuditEntries().List(ctx, store.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, got, 5)
		require.Equal(t, ids[4], got[0].ID)
		require.Equal(t, ids[0], got[4].ID)
		require.Equal(t, base, got[4].Timestamp)
		require.Equal(t, rbac.RoleTeacher, got[4].ToRole)
	})

	t.Run("cursor and limit", func(t *testing.T) {
		got, err := s.AuditEntries().List(ctx, store.AuditFilter{Before: ids[3], Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, ids[2], got[0].ID)
		require.Equal(t, ids[1], got[1].ID)
	})

	t.Run("filters", func(t *testing.T) {
		n, err := s.AuditEntries().Count(ctx, store.AuditFilter{ActorID: "master-1"})
		require.NoError(t, err)
		require.Equal(t, 4, n)

		n, err = s.AuditEntries().Count(ctx, store.AuditFilter{Action: domain.AuditActionRevert})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = s.AuditEntries().Count(ctx, store.AuditFilter{Since: base.Add(3 * time.Minute)})
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("ids cannot be reused", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.AuditEntries().Append(ctx, domain.AuditEntry{
				ID:        ids[0],
				Action:    domain.AuditActionSwitch,
				Outcome:   domain.AuditDenied,
				ActorID:   "intruder",
				ActorRole: rbac.RoleAdmin,
				Timestamp: base,
			})
		})
		require.Error(t, err)

		got, err := s.AuditEntries().List(ctx, store.AuditFilter{ActorID: "intruder"})
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id := idx.New().String()
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Identities().Create(ctx, domain.Identity{ID: id, Email: "tx@example.org", Role: rbac.RoleAdmin, Active: true}); err != nil {
			return err
		}
		_, nested := tx.Tx(ctx)
		return nested
	})
	require.Error(t, err)

	_, err = s.Identities().GetByID(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
}
