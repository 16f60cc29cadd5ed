package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

func TestHome(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/master", rbac.Home(rbac.RoleMaster))
	require.Equal(t, "/admin", rbac.Home(rbac.RoleAdmin))
	require.Equal(t, "/profesor", rbac.Home(rbac.RoleTeacher))
	require.Equal(t, "/parent", rbac.Home(rbac.RoleParent))
	require.Equal(t, "/", rbac.Home(rbac.RolePublic))
	require.Equal(t, "/", rbac.Home(rbac.Role("nope")))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	authed := rbac.Flags{Authenticated: true, RegistrationComplete: true}

	tests := []struct {
		name  string
		role  rbac.Role
		flags rbac.Flags
		path  string
		want  string
	}{
		{"absent goes to login with callback", rbac.RolePublic, rbac.Flags{}, "/admin/x", "/login?callbackUrl=/admin/x"},
		{"absent escapes query characters", rbac.RolePublic, rbac.Flags{}, "/admin/x?tab=1", "/login?callbackUrl=/admin/x%3Ftab%3D1"},
		{"absent with empty path", rbac.RolePublic, rbac.Flags{}, "", "/login?callbackUrl=/"},
		{"developer on dev host goes home", rbac.RoleTeacher, rbac.Flags{Authenticated: true, Developer: true, DevHost: true}, "/profesor/classes", "/profesor"},
		{"developer off dev host is ordinary", rbac.RoleTeacher, rbac.Flags{Authenticated: true, RegistrationComplete: true, Developer: true}, "/profesor/classes", "/profesor/classes"},
		{"parent incomplete to onboarding", rbac.RoleParent, rbac.Flags{Authenticated: true}, "/parent", "/onboarding"},
		{"parent incomplete on settings to onboarding", rbac.RoleParent, rbac.Flags{Authenticated: true}, "/settings", "/onboarding"},
		{"teacher incomplete is not gated", rbac.RoleTeacher, rbac.Flags{Authenticated: true}, "/profesor/x", "/profesor/x"},
		{"landing root goes home", rbac.RoleAdmin, authed, "/", "/admin"},
		{"login goes home", rbac.RoleMaster, authed, "/login", "/master"},
		{"unauthorized goes home", rbac.RoleParent, authed, "/unauthorized", "/parent"},
		{"complete parent off onboarding", rbac.RoleParent, authed, "/onboarding", "/parent"},
		{"disallowed goes home", rbac.RoleParent, authed, "/admin/x", "/parent"},
		{"allowed kept", rbac.RoleAdmin, authed, "/admin/users", "/admin/users"},
		{"master anywhere", rbac.RoleMaster, authed, "/parent/kids", "/parent/kids"},
		{"public role lands on root", rbac.RolePublic, authed, "/admin", "/"},
		{"unknown role treated as public", rbac.Role("ROOT"), authed, "/master", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, rbac.Resolve(tt.role, tt.flags, tt.path))
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()

	paths := []string{"/", "/login", "/unauthorized", "/onboarding", "/admin/x", "/master", "/parent/a", "/settings", "/about", "/api/admin/y"}
	flagSets := []rbac.Flags{
		{Authenticated: true, RegistrationComplete: true},
		{Authenticated: true},
		{Authenticated: true, Developer: true, DevHost: true},
	}

	for _, role := range rbac.Roles {
		for _, f := range flagSets {
			for _, p := range paths {
				once := rbac.Resolve(role, f, p)
				require.Equal(t, once, rbac.Resolve(role, f, once), "role=%s path=%s", role, p)
			}
		}
	}
}
