package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

// IdentityStore owns authentication credentials. Plain credentials never leave this type.
type IdentityStore interface {
	VerifyCredential(ctx context.Context, email, credential string) (models.Identity, error)
	Create(ctx context.Context, email, credential string) (models.Identity, error)
	Upsert(ctx context.Context, email, credential string) (models.Identity, error)
	SetCredential(ctx context.Context, identityID, credential string) error
	FindByEmail(ctx context.Context, email string) (models.Identity, error)
}

type identityStore struct {
	repo   repository.IdentityRepository
	users  repository.UserProfileRepository
	cost   int
	logger zerolog.Logger
}

// NewIdentityStore constructs a bcrypt backed identity store. A cost of zero selects bcrypt.DefaultCost.
// When users is set, Upsert and SetCredential refuse to overwrite the credential of an active staff
// profile with ErrStaffCredential.
func NewIdentityStore(repo repository.IdentityRepository, users repository.UserProfileRepository, cost int, logger zerolog.Logger) IdentityStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &identityStore{
		repo:   repo,
		users:  users,
		cost:   cost,
		logger: logger.With().Str("component", "identity_store").Logger(),
	}
}

func (s *identityStore) VerifyCredential(ctx context.Context, email, credential string) (models.Identity, error) {
	identity, err := s.FindByEmail(ctx, email)
	if err != nil {
		return models.Identity{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.CredentialHash), []byte(credential)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return models.Identity{}, ErrCredentialMismatch
		}
		return models.Identity{}, storeError("identity.verify", err)
	}

	return identity, nil
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (models.Identity, error) {
	identity, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Identity{}, ErrCredentialNotFound
		}
		return models.Identity{}, storeError("identity.lookup", err)
	}
	return identity, nil
}

func (s *identityStore) Create(ctx context.Context, email, credential string) (models.Identity, error) {
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return models.Identity{}, ErrIdentityExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Identity{}, storeError("identity.lookup", err)
	}

	hash, err := s.hash(credential)
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{Email: strings.ToLower(strings.TrimSpace(email)), CredentialHash: hash}
	if err := s.repo.Create(ctx, &identity); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.Identity{}, ErrIdentityExists
		}
		return models.Identity{}, storeError("identity.create", err)
	}

	return identity, nil
}

func (s *identityStore) Upsert(ctx context.Context, email, credential string) (models.Identity, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.guardStaff(ctx, existing.ID); err != nil {
			return models.Identity{}, err
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return models.Identity{}, storeError("identity.lookup", err)
	}

	hash, err := s.hash(credential)
	if err != nil {
		return models.Identity{}, err
	}

	identity, err := s.repo.Upsert(ctx, email, hash)
	if err != nil {
		return models.Identity{}, storeError("identity.upsert", err)
	}
	return identity, nil
}

func (s *identityStore) SetCredential(ctx context.Context, identityID, credential string) error {
	if err := s.guardStaff(ctx, identityID); err != nil {
		return err
	}

	hash, err := s.hash(credential)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateCredential(ctx, identityID, hash); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCredentialNotFound
		}
		return storeError("identity.set_credential", err)
	}
	return nil
}

// guardStaff rejects credential writes for identities whose active profile is staff. Codes only ever
// replace student credentials.
func (s *identityStore) guardStaff(ctx context.Context, identityID string) error {
	if s.users == nil {
		return nil
	}
	profile, err := s.users.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return storeError("identity.profile_lookup", err)
	}
	if !profile.IsDeleted && profile.Role.IsStaff() {
		return ErrStaffCredential
	}
	return nil
}

func (s *identityStore) hash(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.cost)
	if err != nil {
		return "", storeError("identity.hash", err)
	}
	return string(hash), nil
}
