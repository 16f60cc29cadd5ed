package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/session"
)

// Keys is the signing material the gate runs with.
type Keys struct {
	Signer   jwtx.Signer
	Sessions *session.Verifier

	// OAuthKeys and OAuth are nil when no provider is configured.
	OAuthKeys *jwtx.KeySet
	OAuth     jwtx.Verifier
}

// InitKeys builds the HS256 session signer and verifier from the shared
// secret and, when OAUTH_JWKS_FILE is set, loads the OAuth provider's public
// keys for assertion checks.
func InitKeys(cfg Config, logger *slog.Logger) (Keys, error) {
	signer, err := jwtx.NewSignerHS256("gate", []byte(cfg.SigningSecret))
	if err != nil {
		return Keys{}, fmt.Errorf("failed to create session signer: %w", err)
	}
	if err := signer.Validate(); err != nil {
		return Keys{}, fmt.Errorf("session signer not usable: %w", err)
	}

	keys := Keys{
		Signer: signer,
		Sessions: session.NewVerifier(jwtx.NewCommonHS256([]byte(cfg.SigningSecret), jwtx.VerifyOptions{
			Issuer: cfg.Issuer,
		})),
	}

	if cfg.OAuthJWKSFile == "" {
		logger.Info("oauth exchange disabled: OAUTH_JWKS_FILE not set")
		return keys, nil
	}

	ks, err := jwtx.LoadKeySetFile(cfg.OAuthJWKSFile)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to load oauth keys: %w", err)
	}
	keys.OAuthKeys = ks
	keys.OAuth = jwtx.NewCommonEdDSA(ks, jwtx.VerifyOptions{Issuer: cfg.OAuthIssuer})

	logger.Info("oauth keys loaded",
		"file", cfg.OAuthJWKSFile,
		"issuer", cfg.OAuthIssuer,
		"keys", len(ks.PublicJWKS().Keys),
	)
	return keys, nil
}
