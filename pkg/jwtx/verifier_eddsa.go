package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSAVerifier validates JWTs signed using EdDSA (Ed25519). The gate uses it
// for identity assertions handed over by the OAuth provider.
type EdDSAVerifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifierEdDSA creates a verifier using a KeySet of Ed25519 public keys.
func NewVerifierEdDSA(keys *KeySet, opts VerifyOptions) *EdDSAVerifier {
	return &EdDSAVerifier{keys: keys, opts: opts}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *EdDSAVerifier) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		// Need the kid to know which key to use
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
		}

		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: kid %q: %w", kid, err)
		}

		ed25519Pub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: invalid Ed25519 key type")
		}
		return ed25519Pub, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.opts.now(), v.opts.Leeway); err != nil {
		return nil, err
	}

	return claims, nil
}
