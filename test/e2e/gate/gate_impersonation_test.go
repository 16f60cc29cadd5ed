package gate_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// TestImpersonationFlow switches a MASTER to TEACHER and back, then reads the
// audit trail.
func TestImpersonationFlow(t *testing.T) {
	g := setupGate(t, nil)
	_, session := g.loginMaster(t)
	ctx := t.Context()

	status, err := session.SwitchStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.CanSwitch)
	require.False(t, status.HasSwitched)
	require.ElementsMatch(t, []rbac.Role{rbac.RoleAdmin, rbac.RoleTeacher, rbac.RoleParent}, status.ValidRoles)

	switched, err := session.SwitchRole(ctx, authsdk.SwitchRoleRequest{TargetRole: rbac.RoleTeacher, Reason: "checking timetable"})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleTeacher, switched.CurrentRole)
	require.Equal(t, rbac.PrefixTeacher, switched.RedirectTo)

	current, err := session.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleTeacher, current.Role)
	require.NotNil(t, current.Impersonation)
	require.Equal(t, rbac.RoleMaster, current.Impersonation.OriginalRole)
	require.Equal(t, "checking timetable", current.Impersonation.Reason)

	t.Run("invalid target is audited", func(t *testing.T) {
		_, err := session.SwitchRole(ctx, authsdk.SwitchRoleRequest{TargetRole: rbac.RoleMaster})
		apiErr := assertStatus(t, err, http.StatusBadRequest)
		require.Equal(t, authsdk.ErrorCodeInvalidTarget, apiErr.Code)
	})

	reverted, err := session.RevertRole(ctx)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleMaster, reverted.CurrentRole)
	require.Equal(t, rbac.PrefixMaster, reverted.RedirectTo)

	t.Run("revert twice", func(t *testing.T) {
		_, err := session.RevertRole(ctx)
		apiErr := assertStatus(t, err, http.StatusConflict)
		require.Equal(t, authsdk.ErrorCodeNotImpersonating, apiErr.Code)
	})

	t.Run("audit trail", func(t *testing.T) {
		page, err := session.ListAudit(ctx, authsdk.AuditQuery{})
		require.NoError(t, err)
		require.Len(t, page.Entries, 4)

		outcomes := map[string]int{}
		for _, e := range page.Entries {
			outcomes[e.Action+"/"+e.Outcome]++
			require.Equal(t, rbac.RoleMaster, e.ActorRole)
		}
		require.Equal(t, map[string]int{
			"switch/granted": 1,
			"switch/denied":  1,
			"revert/granted": 1,
			"revert/denied":  1,
		}, outcomes)

		reverts, err := session.ListAudit(ctx, authsdk.AuditQuery{Action: "revert"})
		require.NoError(t, err)
		require.Len(t, reverts.Entries, 2)
	})
}

// TestAuditRequiresMaster checks the audit log is closed to other roles,
// including a MASTER acting as one.
func TestAuditRequiresMaster(t *testing.T) {
	g := setupGate(t, nil)
	_, session := g.loginMaster(t)

	_, err := session.SwitchRole(t.Context(), authsdk.SwitchRoleRequest{TargetRole: rbac.RoleParent})
	require.NoError(t, err)

	_, err = session.ListAudit(t.Context(), authsdk.AuditQuery{})
	apiErr := assertStatus(t, err, http.StatusForbidden)
	require.Equal(t, rbac.UnauthorizedPath, apiErr.RedirectTo)
}
