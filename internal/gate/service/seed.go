package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/cryptox"
	"github.com/aussiebroadwan/schoolgate/pkg/idx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

var (
	ErrSeedInvalid      = errors.New("seed: email required")
	ErrSeedExists       = errors.New("seed: identity already exists")
	ErrSeedMasterExists = errors.New("seed: a master identity already exists")
)

// SeedService creates the first privileged identity so a fresh deployment
// can be administered.
type SeedService struct {
	Store store.Store
}

// SeedMaster creates the first active MASTER identity. It refuses once any
// MASTER exists; later ones are provisioned by the institution. An empty
// password is replaced by a generated one, which is returned.
func (s *SeedService) SeedMaster(ctx context.Context, email, password string) (string, error) {
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrSeedInvalid
	}

	if password == "" {
		generated, err := cryptox.GeneratePassword()
		if err != nil {
			return "", err
		}
		password = generated
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		l.Error("failed to hash seed password", slog.Any("error", err))
		return "", err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Identities().CountByRole(ctx, rbac.RoleMaster)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSeedMasterExists
		}
		return tx.Identities().Create(ctx, domain.Identity{
			ID:                   idx.New().String(),
			Email:                email,
			Name:                 "Master",
			PasswordHash:         hash,
			Role:                 rbac.RoleMaster,
			Active:               true,
			RegistrationComplete: true,
		})
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return "", ErrSeedExists
	}
	if errors.Is(err, ErrSeedMasterExists) {
		l.Warn("seed skipped: master already exists", slog.String("email", email))
		return "", err
	}
	if err != nil {
		return "", err
	}

	l.Info("master identity seeded", slog.String("email", email))
	return password, nil
}
