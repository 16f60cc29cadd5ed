package jwtx

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds the public keys trusted for verifying OAuth provider
// assertions. Safe for concurrent use.
type KeySet struct {
	mu  sync.RWMutex
	jks JWKS
	pub map[string]any // kid: ed25519.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		pub: make(map[string]any),
	}
}

// LoadKeySetFile reads a JWKS document from disk.
func LoadKeySetFile(path string) (*KeySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jwtx: read jwks: %w", err)
	}
	var jwks JWKS
	if err := json.Unmarshal(raw, &jwks); err != nil {
		return nil, fmt.Errorf("jwtx: decode jwks: %w", err)
	}
	ks := NewKeySet()
	if err := ks.ResetFromJWKS(jwks); err != nil {
		return nil, err
	}
	return ks, nil
}

// AddJWK adds a JWK to the KeySet and parses it into a usable crypto key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jks.Keys = append(k.jks.Keys, j)
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// PublicJWKS returns a snapshot of the KeySet's JWKS.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jks.Keys...)}
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	newMap := make(map[string]any, len(jwks.Keys))
	for _, j := range jwks.Keys {
		key, err := parseJWKToKey(j)
		if err != nil {
			return err
		}
		newMap[j.Kid] = key
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.pub = newMap
	k.jks = jwks

	return nil
}

// parseJWKToKey converts a JWK into a crypto.PublicKey. Only Ed25519 (OKP)
// is accepted.
func parseJWKToKey(j JWK) (any, error) {
	if j.Kty != "OKP" {
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}
	if j.Crv != "Ed25519" {
		return nil, errors.New("jwtx: unsupported OKP curve " + j.Crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, err
	}
	if len(xb) != ed25519.PublicKeySize {
		return nil, errors.New("jwtx: invalid Ed25519 public key size")
	}
	return ed25519.PublicKey(xb), nil
}
