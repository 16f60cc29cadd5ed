package jwtx

// Signer is our interface for anything that can sign session tokens.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Validate() error
}

// NewSignerHS256 creates an HS256 signer from a shared secret.
func NewSignerHS256(kid string, secret []byte) (Signer, error) {
	return newHS256Signer(kid, secret)
}
