package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/service"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/ratelimit"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

func newImpersonation(t *testing.T, limit int) (*service.ImpersonationService, store.Store) {
	t.Helper()

	s := newStore(t)
	now := base.Add(time.Minute)
	limiter := ratelimit.NewInMemory(limit, time.Hour).WithClock(func() time.Time { return now })

	return &service.ImpersonationService{
		Store:   s,
		Signer:  newSigner(t),
		Limiter: limiter,
		Now:     func() time.Time { return now },
	}, s
}

var meta = service.Meta{SourceIP: "192.0.2.10", UserAgent: "test-agent"}

func TestSwitchRole(t *testing.T) {
	ctx := context.Background()

	t.Run("master switch is signed and audited", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)
		current := claimsFor(rbac.RoleMaster, jwtx.SourceCredentials)

		issued, err := svc.SwitchRole(ctx, current, rbac.RoleTeacher, "  checking a class  ", meta)
		require.NoError(t, err)

		got := verify(t, issued.Token, base.Add(2*time.Minute))
		require.Equal(t, rbac.RoleTeacher, got.Role)
		require.True(t, got.Impersonating())
		require.Equal(t, rbac.RoleMaster, got.Impersonation.OriginalRole)
		require.Equal(t, "checking a class", got.Impersonation.Reason)
		require.Equal(t, base.Add(time.Minute).Unix(), got.Impersonation.SwitchedAt.Unix())
		require.Equal(t, current.ExpiresAt.Unix(), got.ExpiresAt.Unix())
		require.Equal(t, base.Add(time.Minute).Unix(), got.IssuedAt.Unix())
		require.NotEqual(t, current.ID, got.ID)
		require.Equal(t, current.Subject, got.Subject)

		entries, err := s.AuditEntries().List(ctx, store.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		e := entries[0]
		require.Equal(t, domain.AuditActionSwitch, e.Action)
		require.Equal(t, domain.AuditGranted, e.Outcome)
		require.Equal(t, current.Subject, e.ActorID)
		require.Equal(t, rbac.RoleMaster, e.FromRole)
		require.Equal(t, rbac.RoleTeacher, e.ToRole)
		require.Equal(t, meta.SourceIP, e.SourceIP)
		require.Equal(t, meta.UserAgent, e.UserAgent)
	})

	t.Run("non-master denied and audited", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)

		_, err := svc.SwitchRole(ctx, claimsFor(rbac.RoleAdmin, jwtx.SourceCredentials), rbac.RoleTeacher, "", meta)
		require.ErrorIs(t, err, service.ErrNotMaster)

		entries, err := s.AuditEntries().List(ctx, store.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, domain.AuditDenied, entries[0].Outcome)
		require.Equal(t, service.ErrNotMaster.Error(), entries[0].DenyReason)
		require.Equal(t, rbac.RoleAdmin, entries[0].ActorRole)
	})

	t.Run("developer source denied", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)

		_, err := svc.SwitchRole(ctx, claimsFor(rbac.RoleMaster, jwtx.SourceDeveloper), rbac.RoleParent, "", meta)
		require.ErrorIs(t, err, service.ErrSourceNotAllowed)
		require.Equal(t, 1, countAudit(t, s, store.AuditFilter{}))
	})

	t.Run("oauth source allowed", func(t *testing.T) {
		svc, _ := newImpersonation(t, 10)

		_, err := svc.SwitchRole(ctx, claimsFor(rbac.RoleMaster, jwtx.SourceOAuth), rbac.RoleParent, "", meta)
		require.NoError(t, err)
	})

	t.Run("invalid targets denied", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)
		current := claimsFor(rbac.RoleMaster, jwtx.SourceCredentials)

		for _, target := range []rbac.Role{rbac.RoleMaster, rbac.RolePublic, rbac.Role("ROOT")} {
			_, err := svc.SwitchRole(ctx, current, target, "", meta)
			require.ErrorIs(t, err, service.ErrInvalidTarget, target)
		}
		require.Equal(t, 3, countAudit(t, s, store.AuditFilter{}))
	})

	t.Run("rate limited attempts are not audited", func(t *testing.T) {
		svc, s := newImpersonation(t, 2)
		current := claimsFor(rbac.RoleMaster, jwtx.SourceCredentials)

		for range 2 {
			_, err := svc.SwitchRole(ctx, current, rbac.RoleAdmin, "", meta)
			require.NoError(t, err)
		}

		_, err := svc.SwitchRole(ctx, current, rbac.RoleAdmin, "", meta)
		require.ErrorIs(t, err, service.ErrRateLimited)

		var rl *service.RateLimitedError
		require.ErrorAs(t, err, &rl)
		require.Greater(t, rl.RetryAfter, time.Duration(0))

		require.Equal(t, 2, countAudit(t, s, store.AuditFilter{}))
	})

	t.Run("impersonating master may switch again", func(t *testing.T) {
		svc, _ := newImpersonation(t, 10)
		current := claimsFor(rbac.RoleMaster, jwtx.SourceCredentials)

		first, err := svc.SwitchRole(ctx, current, rbac.RoleTeacher, "", meta)
		require.NoError(t, err)

		second, err := svc.SwitchRole(ctx, first.Claims, rbac.RoleParent, "", meta)
		require.NoError(t, err)
		require.Equal(t, rbac.RoleParent, second.Claims.Role)
		require.Equal(t, rbac.RoleMaster, second.Claims.Impersonation.OriginalRole)
	})

	t.Run("audit failure issues no token", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)
		require.NoError(t, s.Close())

		issued, err := svc.SwitchRole(ctx, claimsFor(rbac.RoleMaster, jwtx.SourceCredentials), rbac.RoleAdmin, "", meta)
		require.ErrorIs(t, err, service.ErrAuditUnavailable)
		require.Empty(t, issued.Token)
	})
}

func TestRevert(t *testing.T) {
	ctx := context.Background()

	t.Run("restores master", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)
		current := claimsFor(rbac.RoleMaster, jwtx.SourceCredentials)

		switched, err := svc.SwitchRole(ctx, current, rbac.RoleParent, "parent view", meta)
		require.NoError(t, err)

		reverted, err := svc.Revert(ctx, switched.Claims, meta)
		require.NoError(t, err)

		got := verify(t, reverted.Token, base.Add(2*time.Minute))
		require.Equal(t, rbac.RoleMaster, got.Role)
		require.Nil(t, got.Impersonation)
		require.Equal(t, current.ExpiresAt.Unix(), got.ExpiresAt.Unix())

		require.Equal(t, 1, countAudit(t, s, store.AuditFilter{Action: domain.AuditActionSwitch}))
		require.Equal(t, 1, countAudit(t, s, store.AuditFilter{Action: domain.AuditActionRevert}))

		entries, err := s.AuditEntries().List(ctx, store.AuditFilter{Action: domain.AuditActionRevert})
		require.NoError(t, err)
		require.Equal(t, domain.AuditGranted, entries[0].Outcome)
		require.Equal(t, rbac.RoleParent, entries[0].FromRole)
		require.Equal(t, rbac.RoleMaster, entries[0].ToRole)
		require.Equal(t, "parent view", entries[0].Reason)
	})

	t.Run("not impersonating", func(t *testing.T) {
		svc, s := newImpersonation(t, 10)

		_, err := svc.Revert(ctx, claimsFor(rbac.RoleMaster, jwtx.SourceCredentials), meta)
		require.ErrorIs(t, err, service.ErrNotImpersonating)

		entries, err := s.AuditEntries().List(ctx, store.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, domain.AuditActionRevert, entries[0].Action)
		require.Equal(t, domain.AuditDenied, entries[0].Outcome)
	})

	t.Run("never rate limited", func(t *testing.T) {
		svc, _ := newImpersonation(t, 1)
		current := claimsFor(rbac.RoleMaster, jwtx.SourceCredentials)

		switched, err := svc.SwitchRole(ctx, current, rbac.RoleAdmin, "", meta)
		require.NoError(t, err)

		_, err = svc.SwitchRole(ctx, current, rbac.RoleAdmin, "", meta)
		require.ErrorIs(t, err, service.ErrRateLimited)

		_, err = svc.Revert(ctx, switched.Claims, meta)
		require.NoError(t, err)
	})
}

func TestStatus(t *testing.T) {
	svc, _ := newImpersonation(t, 10)
	ctx := context.Background()

	t.Run("master", func(t *testing.T) {
		st := svc.Status(claimsFor(rbac.RoleMaster, jwtx.SourceCredentials))
		require.Equal(t, rbac.RoleMaster, st.CurrentRole)
		require.False(t, st.HasSwitched)
		require.True(t, st.CanSwitch)
		require.Equal(t, rbac.SwitchTargets, st.ValidRoles)
	})

	t.Run("switched", func(t *testing.T) {
		switched, err := svc.SwitchRole(ctx, claimsFor(rbac.RoleMaster, jwtx.SourceOAuth), rbac.RoleTeacher, "demo", meta)
		require.NoError(t, err)

		st := svc.Status(switched.Claims)
		require.Equal(t, rbac.RoleTeacher, st.CurrentRole)
		require.True(t, st.HasSwitched)
		require.Equal(t, rbac.RoleMaster, st.OriginalRole)
		require.True(t, st.CanSwitch)
		require.Equal(t, "demo", st.Reason)
		require.NotNil(t, st.SwitchedAt)
	})

	t.Run("others cannot switch", func(t *testing.T) {
		st := svc.Status(claimsFor(rbac.RoleTeacher, jwtx.SourceCredentials))
		require.False(t, st.CanSwitch)
		require.Empty(t, st.ValidRoles)

		st = svc.Status(claimsFor(rbac.RoleMaster, jwtx.SourceDeveloper))
		require.False(t, st.CanSwitch)
	})
}
