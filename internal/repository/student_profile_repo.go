package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// StudentProfileFilter defines filters for listing roster students.
type StudentProfileFilter struct {
	Search         string
	ClassID        string
	Sort           string
	Page           int
	PageSize       int
	IncludeDeleted bool
}

// StudentProfileRepository persists the `students` table.
type StudentProfileRepository interface {
	Create(ctx context.Context, student *models.StudentProfile) error
	GetByID(ctx context.Context, id string) (models.StudentProfile, error)
	ListActiveByEmail(ctx context.Context, email string) ([]models.StudentProfile, error)
	List(ctx context.Context, filter StudentProfileFilter) ([]models.StudentProfile, int64, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) (models.StudentProfile, error)
	SetVerificationCode(ctx context.Context, id, code string, issuedAt time.Time) error
	SoftDelete(ctx context.Context, id string) error
	SoftDeleteByClass(ctx context.Context, classID string) (int64, error)
	RenameClass(ctx context.Context, classID, className string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type studentProfileRepository struct {
	db *gorm.DB
}

// NewStudentProfileRepository constructs a student profile repository.
func NewStudentProfileRepository(db *gorm.DB) StudentProfileRepository {
	return &studentProfileRepository{db: db}
}

func (r *studentProfileRepository) Create(ctx context.Context, student *models.StudentProfile) error {
	student.Email = normalizeEmail(student.Email)
	return conn(ctx, r.db).Create(student).Error
}

func (r *studentProfileRepository) GetByID(ctx context.Context, id string) (models.StudentProfile, error) {
	var student models.StudentProfile
	if err := conn(ctx, r.db).Where("id = ?", id).First(&student).Error; err != nil {
		return models.StudentProfile{}, err
	}
	return student, nil
}

// ListActiveByEmail returns every non-deleted student sharing the email, oldest first.
func (r *studentProfileRepository) ListActiveByEmail(ctx context.Context, email string) ([]models.StudentProfile, error) {
	var students []models.StudentProfile
	if err := conn(ctx, r.db).
		Where("email = ? AND is_deleted = ?", normalizeEmail(email), false).
		Order("created_at ASC").
		Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (r *studentProfileRepository) List(ctx context.Context, filter StudentProfileFilter) ([]models.StudentProfile, int64, error) {
	query := conn(ctx, r.db).Model(&models.StudentProfile{})
	if !filter.IncludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}

	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	if filter.ClassID != "" {
		query = query.Where("class_id = ?", filter.ClassID)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sort := filter.Sort
	if sort == "" {
		sort = "created_at DESC"
	}
	query = query.Order(sort).Scopes(pageScope(filter.Page, filter.PageSize))

	var students []models.StudentProfile
	if err := query.Find(&students).Error; err != nil {
		return nil, 0, err
	}

	return students, total, nil
}

func (r *studentProfileRepository) Update(ctx context.Context, id string, updates map[string]interface{}) (models.StudentProfile, error) {
	tx := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Updates(updates)
	if tx.Error != nil {
		return models.StudentProfile{}, tx.Error
	}
	if tx.RowsAffected == 0 {
		return models.StudentProfile{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *studentProfileRepository) SetVerificationCode(ctx context.Context, id, code string, issuedAt time.Time) error {
	update := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Updates(map[string]interface{}{
			"verification_code":            code,
			"verification_code_created_at": issuedAt,
		})
	if update.Error != nil {
		return update.Error
	}
	if update.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *studentProfileRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	update := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now})
	if update.Error != nil {
		return update.Error
	}
	if update.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *studentProfileRepository) SoftDeleteByClass(ctx context.Context, classID string) (int64, error) {
	now := time.Now().UTC()
	update := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("class_id = ?", classID).
		Where("is_deleted = ?", false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": now})
	return update.RowsAffected, update.Error
}

// RenameClass refreshes the denormalized class name of every student in the class, deleted rows included.
func (r *studentProfileRepository) RenameClass(ctx context.Context, classID, className string) (int64, error) {
	update := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("class_id = ?", classID).
		Update("class_name", className)
	return update.RowsAffected, update.Error
}

func (r *studentProfileRepository) Delete(ctx context.Context, id string) error {
	result := conn(ctx, r.db).Where("id = ?", id).Delete(&models.StudentProfile{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
