package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Verifier validates session tokens signed with the gate's shared
// secret. It touches no network or database.
type HS256Verifier struct {
	secret []byte
	opts   VerifyOptions
}

// NewVerifierHS256 creates a verifier for tokens signed with secret.
func NewVerifierHS256(secret []byte, opts VerifyOptions) *HS256Verifier {
	return &HS256Verifier{secret: append([]byte(nil), secret...), opts: opts}
}

// Verify checks signature, registered claims and the session schema. The
// returned claims are already normalised.
func (v *HS256Verifier) Verify(tokenStr string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwtx: verifier has no secret")
	}

	// exp/nbf are checked below against our own clock so tests can pin it.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
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
	if err := claims.Normalize(); err != nil {
		return nil, err
	}

	return claims, nil
}
