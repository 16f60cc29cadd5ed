package domain

import (
	"strings"
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// Identity is a principal known to the identity store. Sessions are issued
// from it; the gate itself only ever sees the resulting claims.
type Identity struct {
	ID                   string
	Email                string
	Name                 string
	PasswordHash         string // empty for OAuth-only accounts
	Role                 rbac.Role
	Active               bool
	RegistrationComplete bool
	InstitutionID        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NormalizeEmail is the canonical form used as lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPassword reports whether the identity can use credentials login.
func (i Identity) HasPassword() bool {
	return i.PasswordHash != ""
}
