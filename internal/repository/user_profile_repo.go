package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// UserProfileRepository persists the `users` table.
type UserProfileRepository interface {
	Create(ctx context.Context, profile *models.UserProfile) error
	GetByID(ctx context.Context, id string) (models.UserProfile, error)
	ListActiveByEmail(ctx context.Context, email string) ([]models.UserProfile, error)
	Merge(ctx context.Context, profile *models.UserProfile, columns ...string) error
	SoftDelete(ctx context.Context, id string) error
	DeleteForStudent(ctx context.Context, studentID, email string) (int64, error)
}

type userProfileRepository struct {
	db *gorm.DB
}

// NewUserProfileRepository constructs the user profile repository.
func NewUserProfileRepository(db *gorm.DB) UserProfileRepository {
	return &userProfileRepository{db: db}
}

func (r *userProfileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	profile.Email = normalizeEmail(profile.Email)
	return conn(ctx, r.db).Create(profile).Error
}

func (r *userProfileRepository) GetByID(ctx context.Context, id string) (models.UserProfile, error) {
	var profile models.UserProfile
	if err := conn(ctx, r.db).Where("id = ?", id).First(&profile).Error; err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

func (r *userProfileRepository) ListActiveByEmail(ctx context.Context, email string) ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	if err := conn(ctx, r.db).
		Where("email = ?", normalizeEmail(email)).
		Where("is_deleted = ?", false).
		Order("created_at ASC").
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// Merge inserts the profile or, when a row with the same id exists, updates only the
// given columns. created_at of an existing row is never touched.
func (r *userProfileRepository) Merge(ctx context.Context, profile *models.UserProfile, columns ...string) error {
	profile.Email = normalizeEmail(profile.Email)
	if len(columns) == 0 {
		columns = []string{"name", "email", "role", "student_ref", "is_deleted"}
	}
	columns = append(columns, "updated_at")

	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(profile).Error
}

func (r *userProfileRepository) SoftDelete(ctx context.Context, id string) error {
	update := conn(ctx, r.db).Model(&models.UserProfile{}).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Updates(map[string]interface{}{"is_deleted": true, "updated_at": time.Now().UTC()})
	if update.Error != nil {
		return update.Error
	}
	if update.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userProfileRepository) DeleteForStudent(ctx context.Context, studentID, email string) (int64, error) {
	result := conn(ctx, r.db).
		Where("student_ref = ? OR (email = ? AND role = ?)", studentID, normalizeEmail(email), models.RoleStudent).
		Delete(&models.UserProfile{})
	return result.RowsAffected, result.Error
}
