package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// DashboardRepository supplies the counters and recent rows of the staff dashboard.
type DashboardRepository interface {
	CountClasses(ctx context.Context) (int64, error)
	CountActiveStudents(ctx context.Context) (int64, error)
	CountStudentsCreatedSince(ctx context.Context, since time.Time) (int64, error)
	RecentClasses(ctx context.Context, limit int) ([]models.Class, error)
	RecentStudents(ctx context.Context, limit int) ([]models.StudentProfile, error)
}

type dashboardRepository struct {
	db *gorm.DB
}

// NewDashboardRepository constructs the dashboard repository.
func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

func (r *dashboardRepository) CountClasses(ctx context.Context) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Class{}).Count(&count).Error
	return count, err
}

func (r *dashboardRepository) CountActiveStudents(ctx context.Context) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("is_deleted = ?", false).
		Count(&count).Error
	return count, err
}

func (r *dashboardRepository) CountStudentsCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.StudentProfile{}).
		Where("is_deleted = ?", false).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *dashboardRepository) RecentClasses(ctx context.Context, limit int) ([]models.Class, error) {
	var classes []models.Class
	err := conn(ctx, r.db).Order("created_at DESC").Limit(limit).Find(&classes).Error
	return classes, err
}

func (r *dashboardRepository) RecentStudents(ctx context.Context, limit int) ([]models.StudentProfile, error) {
	var students []models.StudentProfile
	err := conn(ctx, r.db).
		Where("is_deleted = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&students).Error
	return students, err
}
