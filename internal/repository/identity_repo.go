package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// IdentityRepository persists authentication identities. Email is unique.
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByID(ctx context.Context, id string) (models.Identity, error)
	GetByEmail(ctx context.Context, email string) (models.Identity, error)
	UpdateCredential(ctx context.Context, id, credentialHash string) error
	Upsert(ctx context.Context, email, credentialHash string) (models.Identity, error)
}

type identityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository constructs an identity repository.
func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &identityRepository{db: db}
}

func (r *identityRepository) Create(ctx context.Context, identity *models.Identity) error {
	identity.Email = normalizeEmail(identity.Email)
	return conn(ctx, r.db).Create(identity).Error
}

func (r *identityRepository) GetByID(ctx context.Context, id string) (models.Identity, error) {
	var identity models.Identity
	if err := conn(ctx, r.db).Where("id = ?", id).First(&identity).Error; err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (models.Identity, error) {
	var identity models.Identity
	if err := conn(ctx, r.db).Where("email = ?", normalizeEmail(email)).First(&identity).Error; err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

func (r *identityRepository) UpdateCredential(ctx context.Context, id, credentialHash string) error {
	update := conn(ctx, r.db).Model(&models.Identity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credential_hash": credentialHash,
			"updated_at":      time.Now().UTC(),
		})
	if update.Error != nil {
		return update.Error
	}
	if update.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Upsert creates the identity for email or overwrites the credential of the existing one.
func (r *identityRepository) Upsert(ctx context.Context, email, credentialHash string) (models.Identity, error) {
	identity := models.Identity{
		Email:          normalizeEmail(email),
		CredentialHash: credentialHash,
	}

	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"credential_hash", "updated_at"}),
	}).Create(&identity).Error
	if err != nil {
		return models.Identity{}, err
	}

	return r.GetByEmail(ctx, identity.Email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
