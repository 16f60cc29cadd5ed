package rbac

import (
	"net/url"
	"strings"
)

const (
	HomePath         = "/"
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
	OnboardingPath   = "/onboarding"

	// CallbackParam carries the originally requested path through login.
	CallbackParam = "callbackUrl"
)

var homes = map[Role]string{
	RoleMaster:  PrefixMaster,
	RoleAdmin:   PrefixAdmin,
	RoleTeacher: PrefixTeacher,
	RoleParent:  PrefixParent,
}

// Home returns the landing path for role.
func Home(role Role) string {
	if h, ok := homes[role]; ok {
		return h
	}
	return HomePath
}

// Flags is the session context Resolve needs besides the role.
type Flags struct {
	Authenticated        bool
	RegistrationComplete bool
	// Developer is set when the claim came from the developer bypass source.
	Developer bool
	// DevHost is set when the request host matched a dev-host pattern.
	DevHost bool
}

// IsLandingPath reports whether path is one of the auth or landing pages a
// signed-in user should be moved off of.
func IsLandingPath(path string) bool {
	switch strings.TrimSuffix(path, "/") {
	case "", LoginPath, UnauthorizedPath, OnboardingPath:
		return true
	}
	return false
}

// LoginRedirect builds the login URL carrying requestedPath as callback.
// Slashes are left readable.
func LoginRedirect(requestedPath string) string {
	if requestedPath == "" {
		requestedPath = HomePath
	}
	cb := strings.ReplaceAll(url.QueryEscape(requestedPath), "%2F", "/")
	return LoginPath + "?" + CallbackParam + "=" + cb
}

// Resolve decides where a request for requestedPath should end up. It is pure
// and total; for an authenticated user whose requestedPath is already fine it
// returns requestedPath unchanged, so feeding the result back in is stable.
func Resolve(role Role, flags Flags, requestedPath string) string {
	if !flags.Authenticated {
		return LoginRedirect(requestedPath)
	}
	role = ParseRole(string(role))

	if flags.Developer && flags.DevHost {
		return Home(role)
	}

	if role == RoleParent && !flags.RegistrationComplete {
		return OnboardingPath
	}

	if IsLandingPath(requestedPath) || !CanAccess(role, requestedPath) {
		return Home(role)
	}
	return requestedPath
}
