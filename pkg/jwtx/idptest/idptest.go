// Package idptest stands in for the school's OAuth identity provider in
// tests. It mints Ed25519 assertions that jwtx.NewCommonEdDSA accepts and
// publishes the matching JWKS, either in memory or as a file for
// OAUTH_JWKS_FILE.
package idptest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

// Provider is a throwaway identity provider with one signing key.
type Provider struct {
	Issuer string

	kid string
	key ed25519.PrivateKey
}

// New generates a fresh key for the given issuer.
func New(tb testing.TB, issuer, kid string) *Provider {
	tb.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(tb, err)
	return &Provider{Issuer: issuer, kid: kid, key: key}
}

// Sign signs arbitrary claims, letting tests forge the issuer, expiry or kid.
func (p *Provider) Sign(claims jwtx.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = p.kid
	return t.SignedString(p.key)
}

// Assert returns a valid assertion for email issued at now.
func (p *Provider) Assert(tb testing.TB, subject, email string, now time.Time) string {
	tb.Helper()
	c := jwtx.NewSessionClaims(jwtx.SessionParams{Subject: subject, Email: email}, p.Issuer, 5*time.Minute, now)
	raw, err := p.Sign(c)
	require.NoError(tb, err)
	return raw
}

// JWK is the public half of the provider's key.
func (p *Provider) JWK() jwtx.JWK {
	return jwtx.NewEd25519JWK(p.kid, "sig", jwt.SigningMethodEdDSA.Alg(), p.key.Public().(ed25519.PublicKey))
}

// KeySet returns a KeySet trusting only this provider.
func (p *Provider) KeySet(tb testing.TB) *jwtx.KeySet {
	tb.Helper()
	ks := jwtx.NewKeySet()
	require.NoError(tb, ks.AddJWK(p.JWK()))
	return ks
}

// WriteJWKS writes the provider's JWKS into a temp dir and returns its path.
func (p *Provider) WriteJWKS(tb testing.TB) string {
	tb.Helper()
	raw, err := json.Marshal(jwtx.JWKS{Keys: []jwtx.JWK{p.JWK()}})
	require.NoError(tb, err)
	path := filepath.Join(tb.TempDir(), "jwks.json")
	require.NoError(tb, os.WriteFile(path, raw, 0o600))
	return path
}
