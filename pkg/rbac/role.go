package rbac

import "encoding/json"

// Role is one of the closed set of roles a session can carry. Anything that
// isn't a known role is treated as RolePublic so it can never be mistaken
// for an elevated one.
type Role string

const (
	RoleMaster  Role = "MASTER"
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleParent  Role = "PARENT"
	RolePublic  Role = "PUBLIC"
)

// Roles lists every member of the enumeration, highest privilege first.
var Roles = []Role{RoleMaster, RoleAdmin, RoleTeacher, RoleParent, RolePublic}

// ParseRole maps a free-form string (token payload, database column, form
// value) onto the enumeration. Only exact members match; "master" or
// " MASTER " become RolePublic like any other unknown value.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleMaster:
		return RoleMaster
	case RoleAdmin:
		return RoleAdmin
	case RoleTeacher:
		return RoleTeacher
	case RoleParent:
		return RoleParent
	default:
		return RolePublic
	}
}

// Valid reports whether r is a member of the enumeration as-is.
func (r Role) Valid() bool {
	return ParseRole(string(r)) == r
}

func (r Role) String() string { return string(r) }

// UnmarshalJSON coerces unknown values instead of failing, so a token with a
// garbage role decodes to PUBLIC rather than being rejected outright.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*r = RolePublic
		return nil
	}
	*r = ParseRole(s)
	return nil
}

// SwitchTargets are the roles MASTER may impersonate. MASTER itself (that's
// a revert) and PUBLIC (a meta-role) are excluded.
var SwitchTargets = []Role{RoleAdmin, RoleTeacher, RoleParent}

// IsSwitchTarget reports whether r may be the target of a role switch.
func IsSwitchTarget(r Role) bool {
	for _, t := range SwitchTargets {
		if t == r {
			return true
		}
	}
	return false
}
