package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinHS256SecretLen is the shortest shared secret we accept. HS256 wants at
// least as many key bytes as the hash output.
const MinHS256SecretLen = 32

// HS256Signer signs session tokens with a shared secret.
type HS256Signer struct {
	kid    string
	secret []byte
}

func newHS256Signer(kid string, secret []byte) (*HS256Signer, error) {
	s := &HS256Signer{kid: kid, secret: append([]byte(nil), secret...)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) KID() string { return s.kid }

// Sign serialises claims into a compact HS256 JWT.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Validate checks that the secret is usable.
func (s *HS256Signer) Validate() error {
	if len(s.secret) == 0 {
		return errors.New("jwtx: empty HS256 secret")
	}
	if len(s.secret) < MinHS256SecretLen {
		return fmt.Errorf("jwtx: HS256 secret must be at least %d bytes", MinHS256SecretLen)
	}
	return nil
}
