package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/cryptox"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

var (
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrAccountInactive        = errors.New("account_inactive")
	ErrUnknownIdentity        = errors.New("unknown_identity")
	ErrInvalidAssertion       = errors.New("invalid_assertion")
	ErrStoreUnavailable       = errors.New("store_unavailable")
	ErrRegistrationNotPending = errors.New("registration_not_pending")
	ErrOAuthDisabled          = errors.New("oauth_disabled")
)

// SessionService issues gate sessions from the identity sources and keeps
// issued sessions in step with the identity store.
type SessionService struct {
	Store  store.Store
	Signer jwtx.Signer
	// OAuth verifies identity assertions from the OAuth provider. Nil
	// disables the exchange.
	OAuth  jwtx.Verifier
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login checks an email and password against the identity store.
func (s *SessionService) Login(ctx context.Context, email, password string) (Issued, error) {
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return Issued{}, ErrInvalidCredentials
	}

	ident, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUnknownIdentity) {
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	if !ident.HasPassword() {
		return Issued{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, ident.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("password verification failed", "error", err, slog.String("user_id", ident.ID))
		}
		return Issued{}, ErrInvalidCredentials
	}
	if !ident.Active {
		return Issued{}, ErrAccountInactive
	}

	return s.issue(ident, jwtx.SourceCredentials)
}

// DevLogin issues a developer session for an existing identity without a
// password. Callers must only expose it on dev hosts.
func (s *SessionService) DevLogin(ctx context.Context, email string) (Issued, error) {
	ident, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return Issued{}, err
	}
	if !ident.Active {
		return Issued{}, ErrAccountInactive
	}

	slogx.FromContext(ctx).Warn("developer session issued",
		slog.String("user_id", ident.ID),
		slog.String("role", string(ident.Role)),
	)
	return s.issue(ident, jwtx.SourceDeveloper)
}

// OAuthExchange verifies an assertion from the OAuth provider and issues an
// oauth session for the identity with the asserted email.
func (s *SessionService) OAuthExchange(ctx context.Context, assertion string) (Issued, error) {
	if s.OAuth == nil {
		return Issued{}, ErrOAuthDisabled
	}

	asserted, err := s.OAuth.Verify(strings.TrimSpace(assertion))
	if err != nil {
		slogx.FromContext(ctx).Info("oauth assertion rejected", "error", err)
		return Issued{}, ErrInvalidAssertion
	}
	if asserted.Email == "" {
		return Issued{}, fmt.Errorf("%w: missing email", ErrInvalidAssertion)
	}

	ident, err := s.lookupByEmail(ctx, asserted.Email)
	if err != nil {
		return Issued{}, err
	}
	if !ident.Active {
		return Issued{}, ErrAccountInactive
	}

	return s.issue(ident, jwtx.SourceOAuth)
}

// RefreshResult is the outcome of re-checking a session against the store.
// Issued is set only when the claims had drifted and were re-signed.
type RefreshResult struct {
	Claims jwtx.Claims
	Issued *Issued
}

// Refresh re-reads the identity behind current. A role or registration
// change re-issues the session with the same expiry; an inactive or deleted
// account yields ErrAccountInactive.
func (s *SessionService) Refresh(ctx context.Context, current jwtx.Claims) (RefreshResult, error) {
	ident, err := s.Store.Identities().GetByID(ctx, current.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RefreshResult{}, ErrAccountInactive
		}
		return RefreshResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ident.Active {
		return RefreshResult{}, ErrAccountInactive
	}

	next := current
	changed := false

	if ident.Role != principalRole(current) {
		// The store demoted or promoted the principal; any switch ends here.
		next.Role = ident.Role
		next.Impersonation = nil
		changed = true
	}
	if ident.RegistrationComplete != current.RegistrationComplete {
		next.RegistrationComplete = ident.RegistrationComplete
		changed = true
	}
	if ident.InstitutionID != current.InstitutionID {
		next.InstitutionID = ident.InstitutionID
		changed = true
	}

	if !changed {
		return RefreshResult{Claims: current}, nil
	}

	refresh(&next, s.now())
	token, err := s.Signer.Sign(next)
	if err != nil {
		return RefreshResult{}, err
	}

	slogx.FromContext(ctx).Info("session reissued",
		slog.String("user_id", ident.ID),
		slog.String("role", string(next.Role)),
		slog.Bool("reg_complete", next.RegistrationComplete),
	)
	return RefreshResult{Claims: next, Issued: &Issued{Token: token, Claims: next}}, nil
}

// CompleteRegistration marks a PARENT's registration as complete and
// re-issues their session. A MASTER acting as PARENT has no registration of
// their own to complete, so impersonated sessions are refused before the
// store is touched.
func (s *SessionService) CompleteRegistration(ctx context.Context, current jwtx.Claims) (Issued, error) {
	if current.Impersonating() || current.Role != rbac.RoleParent || current.RegistrationComplete {
		return Issued{}, ErrRegistrationNotPending
	}

	if err := s.Store.Identities().SetRegistrationComplete(ctx, current.Subject, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Issued{}, ErrUnknownIdentity
		}
		return Issued{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	next := current
	next.RegistrationComplete = true
	refresh(&next, s.now())

	token, err := s.Signer.Sign(next)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, Claims: next}, nil
}

func (s *SessionService) lookupByEmail(ctx context.Context, email string) (domain.Identity, error) {
	ident, err := s.Store.Identities().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrUnknownIdentity
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ident, nil
}

func (s *SessionService) issue(ident domain.Identity, src jwtx.Source) (Issued, error) {
	claims := jwtx.NewSessionClaims(jwtx.SessionParams{
		Subject:              ident.ID,
		Email:                ident.Email,
		Name:                 ident.Name,
		Role:                 ident.Role,
		RegistrationComplete: ident.RegistrationComplete,
		Source:               src,
		InstitutionID:        ident.InstitutionID,
	}, s.Issuer, s.TTL, s.now())

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, Claims: claims}, nil
}
