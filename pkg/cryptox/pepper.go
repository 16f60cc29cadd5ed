package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// The pepper is a server-side secret mixed into every password hash. It
// lives in a file so it survives restarts and is created on first use.
var (
	pepperMu   sync.Mutex
	pepper     string
	pepperFile string
)

// SetPepperPath sets where the pepper is read from and clears any cached
// value.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

// LoadPepper reads (or creates) the pepper now so startup fails early on a
// bad path.
func LoadPepper() error {
	_, err := pepperValue()
	return err
}

func pepperValue() (string, error) {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper, nil
	}
	if pepperFile == "" {
		return "", errors.New("cryptox: pepper path not set")
	}

	p, err := loadOrGeneratePepper(pepperFile)
	if err != nil {
		return "", err
	}
	pepper = p
	return pepper, nil
}

func loadOrGeneratePepper(file string) (string, error) {
	file = filepath.Clean(file)

	raw, err := os.ReadFile(file)
	if err == nil {
		p := strings.TrimSpace(string(raw))
		if p == "" {
			return "", fmt.Errorf("cryptox: pepper file %s is empty", file)
		}
		return p, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("cryptox: read pepper: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return "", fmt.Errorf("cryptox: pepper dir: %w", err)
	}

	b := make([]byte, keyLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(b)
	if err := os.WriteFile(file, []byte(p), 0o600); err != nil {
		return "", fmt.Errorf("cryptox: write pepper: %w", err)
	}
	return p, nil
}
