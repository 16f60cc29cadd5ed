package jwtx

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// DefaultSessionTTL is the lifetime of a session token when the issuer does
// not configure one.
const DefaultSessionTTL = 8 * time.Hour

// Source identifies which identity provider issued a session.
type Source string

const (
	SourceCredentials Source = "credentials"
	SourceOAuth       Source = "oauth"
	SourceDeveloper   Source = "developer"
)

// ParseSource maps s onto the known sources. The second return is false for
// anything else.
func ParseSource(s string) (Source, bool) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceCredentials:
		return SourceCredentials, true
	case SourceOAuth:
		return SourceOAuth, true
	case SourceDeveloper:
		return SourceDeveloper, true
	}
	return "", false
}

// CanMutate reports whether sessions from this source may perform privileged
// mutations such as a role switch. Developer bypass sessions never can.
func (s Source) CanMutate() bool {
	return s == SourceCredentials || s == SourceOAuth
}

// Impersonation records that a MASTER session is currently acting as another
// role.
type Impersonation struct {
	Active       bool             `json:"active"`
	OriginalRole rbac.Role        `json:"originalRole"`
	SwitchedAt   *jwt.NumericDate `json:"switchedAt,omitempty"`
	Reason       string           `json:"reason,omitempty"`
}

// Claims are the session claims carried by every gate token. Once signed they
// are never modified; a role switch mints a new token instead.
type Claims struct {
	jwt.RegisteredClaims

	Email                string         `json:"email,omitempty"`
	Name                 string         `json:"name,omitempty"`
	Role                 rbac.Role      `json:"role"`
	RegistrationComplete bool           `json:"reg_complete"`
	Source               Source         `json:"src"`
	InstitutionID        string         `json:"inst,omitempty"`
	Impersonation        *Impersonation `json:"imp,omitempty"`
}

// SessionParams is everything an identity source knows about the principal
// when it issues a session.
type SessionParams struct {
	Subject              string
	Email                string
	Name                 string
	Role                 rbac.Role
	RegistrationComplete bool
	Source               Source
	InstitutionID        string
}

// NewSessionClaims builds minimally-correct session claims.
func NewSessionClaims(p SessionParams, issuer string, ttl time.Duration, now time.Time) Claims {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Email:                p.Email,
		Name:                 p.Name,
		Role:                 rbac.ParseRole(string(p.Role)),
		RegistrationComplete: p.RegistrationComplete,
		Source:               p.Source,
		InstitutionID:        p.InstitutionID,
	}
}

// NewJTI returns a fresh identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// Normalize validates the session-specific parts of the claims and coerces
// the role into the closed enumeration. A non-nil error means the claims
// must be treated as absent.
func (c *Claims) Normalize() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: missing sub", ErrInvalidClaim)
	}

	c.Role = rbac.ParseRole(string(c.Role))

	src, ok := ParseSource(string(c.Source))
	if !ok {
		return fmt.Errorf("%w: unknown src %q", ErrInvalidClaim, c.Source)
	}
	c.Source = src

	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return fmt.Errorf("%w: missing iat or exp", ErrInvalidClaim)
	}
	if !c.ExpiresAt.After(c.IssuedAt.Time) {
		return fmt.Errorf("%w: exp not after iat", ErrInvalidClaim)
	}

	if imp := c.Impersonation; imp != nil {
		if rbac.ParseRole(string(imp.OriginalRole)) != rbac.RoleMaster {
			return fmt.Errorf("%w: impersonation by non-master", ErrInvalidClaim)
		}
		if !c.Source.CanMutate() {
			return fmt.Errorf("%w: impersonation from %s source", ErrInvalidClaim, c.Source)
		}
		if !imp.Active {
			c.Impersonation = nil
		}
	}

	return nil
}

// Impersonating reports whether the claims carry an active role switch.
func (c *Claims) Impersonating() bool {
	return c.Impersonation != nil && c.Impersonation.Active
}

// IssuedAtTime returns iat, or the zero time when unset.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiryWithLeeway checks exp and nbf against now with a small grace
// period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
