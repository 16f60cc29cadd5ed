package rbac

import (
	"net/url"
	"path"
	"strings"
)

// Route prefixes known to the access matrix. Paths outside all of these are
// public.
const (
	PrefixMaster     = "/master"
	PrefixAdmin      = "/admin"
	PrefixTeacher    = "/profesor"
	PrefixParent     = "/parent"
	PrefixSettings   = "/settings"
	PrefixOnboarding = "/onboarding"

	PrefixAPIMaster  = "/api/master"
	PrefixAPIAdmin   = "/api/admin"
	PrefixAPITeacher = "/api/profesor"
	PrefixAPIParent  = "/api/parent"
)

// protectedPrefixes is ordered longest first so PrefixOf picks the most
// specific match.
var protectedPrefixes = []string{
	PrefixAPITeacher,
	PrefixAPIMaster,
	PrefixAPIParent,
	PrefixAPIAdmin,
	PrefixOnboarding,
	PrefixSettings,
	PrefixTeacher,
	PrefixMaster,
	PrefixParent,
	PrefixAdmin,
}

// matrix holds the explicit allow entries. MASTER has none on purpose, see
// IsAllowed.
var matrix = map[Role]map[string]bool{
	RoleAdmin: {
		PrefixAdmin:    true,
		PrefixAPIAdmin: true,
		PrefixSettings: true,
	},
	RoleTeacher: {
		PrefixTeacher:    true,
		PrefixAPITeacher: true,
		PrefixSettings:   true,
	},
	RoleParent: {
		PrefixParent:     true,
		PrefixAPIParent:  true,
		PrefixSettings:   true,
		PrefixOnboarding: true,
	},
}

// CleanPath decodes percent-escapes in an escaped request path and resolves
// dot segments and repeated slashes, giving the path a router dispatches on.
// A query or fragment on p is dropped first. ok is false when p holds a
// malformed escape.
func CleanPath(p string) (clean string, ok bool) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	u, err := url.PathUnescape(p)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return path.Clean(u), true
}

// PrefixOf returns the protected prefix that p falls under, or "" when the
// path is public. p is an escaped path as sent on the wire; it goes through
// CleanPath and is compared case-insensitively, so "/%61dmin" and "/Admin/."
// are both under "/admin". A prefix matches the exact path or any sub-path,
// so "/administrator" is not under "/admin". Paths that can't be decoded fall
// under PrefixMaster.
func PrefixOf(p string) string {
	clean, ok := CleanPath(p)
	if !ok {
		return PrefixMaster
	}
	clean = strings.ToLower(clean)
	for _, prefix := range protectedPrefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
			return prefix
		}
	}
	return ""
}

// RequiresAuth reports whether path sits under a protected prefix.
func RequiresAuth(path string) bool {
	return PrefixOf(path) != ""
}

// IsRoleArea reports whether prefix is a role-specific area (as opposed to
// settings or onboarding which every role shares).
func IsRoleArea(prefix string) bool {
	switch prefix {
	case "", PrefixSettings, PrefixOnboarding:
		return false
	default:
		return true
	}
}

// IsAllowed is the access matrix lookup. It is total: MASTER passes every
// check, public prefixes pass for everyone, and everything else needs an
// explicit entry. Unknown prefixes are denied.
func IsAllowed(role Role, prefix string) bool {
	if prefix == "" {
		return true
	}
	if role == RoleMaster {
		return true
	}
	return matrix[role][prefix]
}

// CanAccess is IsAllowed applied to a full request path.
func CanAccess(role Role, path string) bool {
	return IsAllowed(role, PrefixOf(path))
}
