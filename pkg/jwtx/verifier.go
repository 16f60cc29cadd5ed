package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience values the token must contain (claims.aud). Empty means "don't care".
	Audience []string

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// Now overrides the clock, mostly for tests. Nil means time.Now.
	Now func() time.Time
}

func (o VerifyOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// mapParseError folds golang-jwt's errors onto our sentinels so callers only
// need to know about one set.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrNoKey), errors.Is(err, ErrUnknownKID):
		return fmt.Errorf("%w: %v", ErrUnknownKID, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrAlgMismatch, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}

// HS256Adapter a Verifier wrapper for HS256.
type HS256Adapter struct{ *HS256Verifier }

func (a HS256Adapter) Verify(token string) (Claims, error) {
	c, err := a.HS256Verifier.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// NewCommonHS256 returns a Verifier using the HS256 implementation wrapped
// in the common interface.
func NewCommonHS256(secret []byte, opts VerifyOptions) Verifier {
	return HS256Adapter{NewVerifierHS256(secret, opts)}
}

// EdDSAAdapter a Verifier wrapper for EdDSA.
type EdDSAAdapter struct{ *EdDSAVerifier }

func (a EdDSAAdapter) Verify(token string) (Claims, error) {
	c, err := a.EdDSAVerifier.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// NewCommonEdDSA returns a Verifier using the EdDSA implementation wrapped
// in the common interface.
func NewCommonEdDSA(keys *KeySet, opts VerifyOptions) Verifier {
	return EdDSAAdapter{NewVerifierEdDSA(keys, opts)}
}
