// Package session turns raw tokens into session claims and picks the
// authoritative one when several identity sources present a session at once.
package session

import (
	"strings"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

// Verifier wraps a jwtx.Verifier and collapses every failure into "absent".
// It does no I/O.
type Verifier struct {
	inner jwtx.Verifier
}

// NewVerifier returns a Verifier backed by v.
func NewVerifier(v jwtx.Verifier) *Verifier {
	return &Verifier{inner: v}
}

// Verify returns the normalised claims and true, or the zero Claims and
// false for anything that isn't a valid session token. A nil Verifier
// verifies nothing.
func (v *Verifier) Verify(raw string) (jwtx.Claims, bool) {
	if v == nil || v.inner == nil {
		return jwtx.Claims{}, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return jwtx.Claims{}, false
	}

	claims, err := v.inner.Verify(raw)
	if err != nil {
		return jwtx.Claims{}, false
	}
	// Verifiers other than HS256 may not normalise.
	if err := claims.Normalize(); err != nil {
		return jwtx.Claims{}, false
	}
	return claims, true
}
