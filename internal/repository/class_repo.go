package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// ClassRepository persists homeroom classes.
type ClassRepository interface {
	Create(ctx context.Context, class *models.Class) error
	GetByID(ctx context.Context, id string) (models.Class, error)
	List(ctx context.Context) ([]models.Class, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) (models.Class, error)
	Delete(ctx context.Context, id string) error
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository constructs a class repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) Create(ctx context.Context, class *models.Class) error {
	return conn(ctx, r.db).Create(class).Error
}

func (r *classRepository) GetByID(ctx context.Context, id string) (models.Class, error) {
	var class models.Class
	if err := conn(ctx, r.db).Where("id = ?", id).First(&class).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) List(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	if err := conn(ctx, r.db).Order("created_at DESC").Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *classRepository) Update(ctx context.Context, id string, updates map[string]interface{}) (models.Class, error) {
	result := conn(ctx, r.db).Model(&models.Class{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return models.Class{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Class{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *classRepository) Delete(ctx context.Context, id string) error {
	result := conn(ctx, r.db).Where("id = ?", id).Delete(&models.Class{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
