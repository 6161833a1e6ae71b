package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// RecordKind names one of the per-student record collections.
type RecordKind string

const (
	RecordAchievements RecordKind = "achievements"
	RecordConduct      RecordKind = "conduct"
	RecordScores       RecordKind = "scores"
	RecordNotes        RecordKind = "notes"
)

// RecordKinds lists every dependent record collection of a student.
var RecordKinds = []RecordKind{RecordAchievements, RecordConduct, RecordScores, RecordNotes}

// StudentRecordRepository persists achievements, conduct, scores and notes.
type StudentRecordRepository interface {
	Create(ctx context.Context, record interface{}) error
	ListAchievements(ctx context.Context, studentID string) ([]models.StudentAchievement, error)
	ListConduct(ctx context.Context, studentID string) ([]models.StudentConduct, error)
	ListScores(ctx context.Context, studentID string) ([]models.StudentScore, error)
	AggregateScores(ctx context.Context, studentID string) (ScoreAggregate, []ScoreAggregate, error)
	ListNotes(ctx context.Context, studentID string) ([]models.StudentNote, error)
	Delete(ctx context.Context, kind RecordKind, studentID, recordID string) error
	DeleteAllForStudent(ctx context.Context, studentID string) (int64, error)
}

// ScoreAggregate summarizes a set of scores. Subject is empty for the overall aggregate.
type ScoreAggregate struct {
	Subject string
	Count   int64
	Average float64
	Lowest  float64
	Highest float64
}

const scoreAggregateColumns = "COUNT(*) AS count, COALESCE(AVG(value), 0) AS average, COALESCE(MIN(value), 0) AS lowest, COALESCE(MAX(value), 0) AS highest"

type studentRecordRepository struct {
	db *gorm.DB
}

// NewStudentRecordRepository constructs the student record repository.
func NewStudentRecordRepository(db *gorm.DB) StudentRecordRepository {
	return &studentRecordRepository{db: db}
}

func (r *studentRecordRepository) Create(ctx context.Context, record interface{}) error {
	return conn(ctx, r.db).Create(record).Error
}

func (r *studentRecordRepository) ListAchievements(ctx context.Context, studentID string) ([]models.StudentAchievement, error) {
	var records []models.StudentAchievement
	err := conn(ctx, r.db).Where("student_id = ?", studentID).Order("date DESC").Find(&records).Error
	return records, err
}

func (r *studentRecordRepository) ListConduct(ctx context.Context, studentID string) ([]models.StudentConduct, error) {
	var records []models.StudentConduct
	err := conn(ctx, r.db).Where("student_id = ?", studentID).Order("date DESC").Find(&records).Error
	return records, err
}

func (r *studentRecordRepository) ListScores(ctx context.Context, studentID string) ([]models.StudentScore, error) {
	var records []models.StudentScore
	err := conn(ctx, r.db).Where("student_id = ?", studentID).Order("subject ASC, date DESC").Find(&records).Error
	return records, err
}

// AggregateScores returns the overall aggregate and one aggregate per subject, ordered by subject.
func (r *studentRecordRepository) AggregateScores(ctx context.Context, studentID string) (ScoreAggregate, []ScoreAggregate, error) {
	var overall ScoreAggregate
	if err := conn(ctx, r.db).Model(&models.StudentScore{}).
		Select(scoreAggregateColumns).
		Where("student_id = ?", studentID).
		Scan(&overall).Error; err != nil {
		return ScoreAggregate{}, nil, err
	}

	var subjects []ScoreAggregate
	if err := conn(ctx, r.db).Model(&models.StudentScore{}).
		Select("subject, " + scoreAggregateColumns).
		Where("student_id = ?", studentID).
		Group("subject").
		Order("subject ASC").
		Scan(&subjects).Error; err != nil {
		return ScoreAggregate{}, nil, err
	}
	return overall, subjects, nil
}

func (r *studentRecordRepository) ListNotes(ctx context.Context, studentID string) ([]models.StudentNote, error) {
	var records []models.StudentNote
	err := conn(ctx, r.db).Where("student_id = ?", studentID).Order("date DESC").Find(&records).Error
	return records, err
}

func (r *studentRecordRepository) Delete(ctx context.Context, kind RecordKind, studentID, recordID string) error {
	model, err := recordModel(kind)
	if err != nil {
		return err
	}

	result := conn(ctx, r.db).Where("id = ? AND student_id = ?", recordID, studentID).Delete(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *studentRecordRepository) DeleteAllForStudent(ctx context.Context, studentID string) (int64, error) {
	var total int64
	for _, kind := range RecordKinds {
		model, err := recordModel(kind)
		if err != nil {
			return total, err
		}
		result := conn(ctx, r.db).Where("student_id = ?", studentID).Delete(model)
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
	}
	return total, nil
}

func recordModel(kind RecordKind) (interface{}, error) {
	switch kind {
	case RecordAchievements:
		return &models.StudentAchievement{}, nil
	case RecordConduct:
		return &models.StudentConduct{}, nil
	case RecordScores:
		return &models.StudentScore{}, nil
	case RecordNotes:
		return &models.StudentNote{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}
