package rbac_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

var allPrefixes = []string{
	"",
	rbac.PrefixMaster,
	rbac.PrefixAdmin,
	rbac.PrefixTeacher,
	rbac.PrefixParent,
	rbac.PrefixSettings,
	rbac.PrefixOnboarding,
	rbac.PrefixAPIMaster,
	rbac.PrefixAPIAdmin,
	rbac.PrefixAPITeacher,
	rbac.PrefixAPIParent,
	"/unknown",
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	require.Equal(t, rbac.RoleMaster, rbac.ParseRole("MASTER"))
	require.Equal(t, rbac.RoleTeacher, rbac.ParseRole("TEACHER"))
	require.Equal(t, rbac.RolePublic, rbac.ParseRole("SUPERUSER"))
	require.Equal(t, rbac.RolePublic, rbac.ParseRole(""))
	require.False(t, rbac.Role("root").Valid())
	require.True(t, rbac.RoleParent.Valid())

	t.Run("no case folding", func(t *testing.T) {
		for _, s := range []string{"master", " MASTER ", "Master", "MASTER\n", "admin", "Teacher"} {
			require.Equal(t, rbac.RolePublic, rbac.ParseRole(s), "%q", s)
			require.False(t, rbac.Role(s).Valid(), "%q", s)
		}
	})

	t.Run("json coerces lowercase to public", func(t *testing.T) {
		var r rbac.Role
		require.NoError(t, json.Unmarshal([]byte(`"master"`), &r))
		require.Equal(t, rbac.RolePublic, r)
	})
}

func TestPrefixOf(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/admin":                rbac.PrefixAdmin,
		"/admin/users":          rbac.PrefixAdmin,
		"/administrator":        "",
		"/api/admin/users":      rbac.PrefixAPIAdmin,
		"/api/profesor/classes": rbac.PrefixAPITeacher,
		"/profesor":             rbac.PrefixTeacher,
		"/onboarding/step-1":    rbac.PrefixOnboarding,
		"/":                     "",
		"/login":                "",
		"/api/auth/session":     "",

		"/%61dmin/x":           rbac.PrefixAdmin,
		"/api/m%61ster/audit":  rbac.PrefixAPIMaster,
		"/ADMIN/users":         rbac.PrefixAdmin,
		"/Api/Master":          rbac.PrefixAPIMaster,
		"/admin/.":             rbac.PrefixAdmin,
		"/public/../admin":     rbac.PrefixAdmin,
		"//admin//users":       rbac.PrefixAdmin,
		"/%2Fmaster":           rbac.PrefixMaster,
		"/%zzadmin":            rbac.PrefixMaster,
		"/about/%2e%2e/parent": rbac.PrefixParent,
		"/admin?tab=users":     rbac.PrefixAdmin,
	}
	for path, want := range cases {
		require.Equal(t, want, rbac.PrefixOf(path), path)
		require.Equal(t, want != "", rbac.RequiresAuth(path), path)
	}
}

func TestIsAllowed(t *testing.T) {
	t.Parallel()

	t.Run("master allowed everywhere", func(t *testing.T) {
		for _, p := range allPrefixes {
			require.True(t, rbac.IsAllowed(rbac.RoleMaster, p), p)
		}
	})

	t.Run("public prefixes allowed for everyone", func(t *testing.T) {
		for _, r := range rbac.Roles {
			require.True(t, rbac.IsAllowed(r, ""))
		}
		require.True(t, rbac.IsAllowed(rbac.Role("bogus"), ""))
	})

	t.Run("public role denied on every protected prefix", func(t *testing.T) {
		for _, p := range allPrefixes[1:] {
			require.False(t, rbac.IsAllowed(rbac.RolePublic, p), p)
			require.False(t, rbac.IsAllowed(rbac.Role("bogus"), p), p)
		}
	})

	t.Run("explicit entries", func(t *testing.T) {
		require.True(t, rbac.IsAllowed(rbac.RoleAdmin, rbac.PrefixAdmin))
		require.True(t, rbac.IsAllowed(rbac.RoleAdmin, rbac.PrefixAPIAdmin))
		require.True(t, rbac.IsAllowed(rbac.RoleAdmin, rbac.PrefixSettings))
		require.False(t, rbac.IsAllowed(rbac.RoleAdmin, rbac.PrefixMaster))
		require.False(t, rbac.IsAllowed(rbac.RoleAdmin, rbac.PrefixParent))

		require.True(t, rbac.IsAllowed(rbac.RoleTeacher, rbac.PrefixTeacher))
		require.False(t, rbac.IsAllowed(rbac.RoleTeacher, rbac.PrefixAdmin))
		require.False(t, rbac.IsAllowed(rbac.RoleTeacher, rbac.PrefixOnboarding))

		require.True(t, rbac.IsAllowed(rbac.RoleParent, rbac.PrefixParent))
		require.True(t, rbac.IsAllowed(rbac.RoleParent, rbac.PrefixOnboarding))
		require.False(t, rbac.IsAllowed(rbac.RoleParent, rbac.PrefixAdmin))
		require.False(t, rbac.IsAllowed(rbac.RoleParent, rbac.PrefixAPIAdmin))
	})

	t.Run("unknown prefix denied for non-master", func(t *testing.T) {
		require.False(t, rbac.IsAllowed(rbac.RoleAdmin, "/unknown"))
	})
}

func TestCanAccess(t *testing.T) {
	t.Parallel()

	require.True(t, rbac.CanAccess(rbac.RoleParent, "/parent/children/1"))
	require.False(t, rbac.CanAccess(rbac.RoleParent, "/admin/x"))
	require.True(t, rbac.CanAccess(rbac.RolePublic, "/about"))
}
