package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

var (
	// ErrUnknownRecordKind indicates the record collection name is not recognised.
	ErrUnknownRecordKind = errors.New("unknown record kind")
	// ErrRecordNotFound indicates the record does not exist for the student.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordInvalid indicates a required field for the record kind is missing or out of range.
	ErrRecordInvalid = errors.New("record payload invalid")
)

const (
	minScore = 0
	maxScore = 10
)

// RecordService manages achievements, conduct, scores and notes of a student.
type RecordService interface {
	Add(ctx context.Context, studentID, kind string, payload dto.RecordCreateRequest, actor ActivityActor) (dto.RecordResponse, error)
	List(ctx context.Context, studentID, kind string) ([]dto.RecordResponse, error)
	SummarizeScores(ctx context.Context, studentID string) (dto.ScoreSummary, error)
	Delete(ctx context.Context, studentID, kind, recordID string, actor ActivityActor) error
}

type recordService struct {
	records   repository.StudentRecordRepository
	students  repository.StudentProfileRepository
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRecordService constructs the student record service.
func NewRecordService(records repository.StudentRecordRepository, students repository.StudentProfileRepository, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) RecordService {
	return &recordService{
		records:   records,
		students:  students,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "record_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ParseRecordKind validates a record collection name.
func ParseRecordKind(value string) (repository.RecordKind, error) {
	kind := repository.RecordKind(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range repository.RecordKinds {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRecordKind, value)
}

// IsScoreKind reports whether the collection name selects scores.
func IsScoreKind(value string) bool {
	kind, err := ParseRecordKind(value)
	return err == nil && kind == repository.RecordScores
}

func (s *recordService) Add(ctx context.Context, studentID, kindName string, payload dto.RecordCreateRequest, actor ActivityActor) (dto.RecordResponse, error) {
	kind, err := ParseRecordKind(kindName)
	if err != nil {
		return dto.RecordResponse{}, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.RecordResponse{}, err
	}
	if err := s.ensureActiveStudent(ctx, studentID); err != nil {
		return dto.RecordResponse{}, err
	}

	date := s.now()
	if payload.Date != nil && !payload.Date.IsZero() {
		date = payload.Date.UTC()
	}

	var response dto.RecordResponse
	switch kind {
	case repository.RecordAchievements:
		record := models.StudentAchievement{
			StudentID:   studentID,
			Title:       s.plain(payload.Title),
			Description: s.rich(payload.Description),
			Type:        s.plain(payload.Type),
			Date:        date,
		}
		if record.Title == "" || record.Type == "" {
			return dto.RecordResponse{}, fmt.Errorf("%w: title and type are required", ErrRecordInvalid)
		}
		if err := s.records.Create(ctx, &record); err != nil {
			return dto.RecordResponse{}, err
		}
		response = dto.NewAchievementResponse(record)
	case repository.RecordConduct:
		record := models.StudentConduct{
			StudentID:   studentID,
			Type:        s.plain(payload.Type),
			Description: s.rich(payload.Description),
			Date:        date,
		}
		if record.Type == "" || record.Description == "" {
			return dto.RecordResponse{}, fmt.Errorf("%w: type and description are required", ErrRecordInvalid)
		}
		if err := s.records.Create(ctx, &record); err != nil {
			return dto.RecordResponse{}, err
		}
		response = dto.NewConductResponse(record)
	case repository.RecordScores:
		if payload.Value == nil || *payload.Value < minScore || *payload.Value > maxScore {
			return dto.RecordResponse{}, fmt.Errorf("%w: value must be between %d and %d", ErrRecordInvalid, minScore, maxScore)
		}
		record := models.StudentScore{
			StudentID: studentID,
			Subject:   s.plain(payload.Subject),
			Value:     *payload.Value,
			Type:      s.plain(payload.Type),
			Date:      date,
		}
		if record.Subject == "" || record.Type == "" {
			return dto.RecordResponse{}, fmt.Errorf("%w: subject and type are required", ErrRecordInvalid)
		}
		if err := s.records.Create(ctx, &record); err != nil {
			return dto.RecordResponse{}, err
		}
		response = dto.NewScoreResponse(record)
	case repository.RecordNotes:
		record := models.StudentNote{
			StudentID: studentID,
			Content:   s.rich(payload.Content),
			Date:      date,
		}
		if record.Content == "" {
			return dto.RecordResponse{}, fmt.Errorf("%w: content is required", ErrRecordInvalid)
		}
		if err := s.records.Create(ctx, &record); err != nil {
			return dto.RecordResponse{}, err
		}
		response = dto.NewNoteResponse(record)
	}

	s.record(ctx, actor, "record.created", studentID, map[string]interface{}{"kind": string(kind), "record_id": response.ID})
	return response, nil
}

func (s *recordService) List(ctx context.Context, studentID, kindName string) ([]dto.RecordResponse, error) {
	kind, err := ParseRecordKind(kindName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureActiveStudent(ctx, studentID); err != nil {
		return nil, err
	}

	responses := make([]dto.RecordResponse, 0)
	switch kind {
	case repository.RecordAchievements:
		records, err := s.records.ListAchievements(ctx, studentID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			responses = append(responses, dto.NewAchievementResponse(record))
		}
	case repository.RecordConduct:
		records, err := s.records.ListConduct(ctx, studentID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			responses = append(responses, dto.NewConductResponse(record))
		}
	case repository.RecordScores:
		records, err := s.records.ListScores(ctx, studentID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			responses = append(responses, dto.NewScoreResponse(record))
		}
	case repository.RecordNotes:
		records, err := s.records.ListNotes(ctx, studentID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			responses = append(responses, dto.NewNoteResponse(record))
		}
	}

	return responses, nil
}

func (s *recordService) SummarizeScores(ctx context.Context, studentID string) (dto.ScoreSummary, error) {
	if err := s.ensureActiveStudent(ctx, studentID); err != nil {
		return dto.ScoreSummary{}, err
	}

	overall, subjects, err := s.records.AggregateScores(ctx, studentID)
	if err != nil {
		return dto.ScoreSummary{}, err
	}

	summary := dto.ScoreSummary{ScoreStats: scoreStats(overall), Subjects: make([]dto.ScoreStats, 0, len(subjects))}
	for _, subject := range subjects {
		summary.Subjects = append(summary.Subjects, scoreStats(subject))
	}
	return summary, nil
}

func scoreStats(aggregate repository.ScoreAggregate) dto.ScoreStats {
	return dto.ScoreStats{
		Subject: aggregate.Subject,
		Count:   aggregate.Count,
		Average: math.Round(aggregate.Average*100) / 100,
		Lowest:  aggregate.Lowest,
		Highest: aggregate.Highest,
	}
}

func (s *recordService) Delete(ctx context.Context, studentID, kindName, recordID string, actor ActivityActor) error {
	kind, err := ParseRecordKind(kindName)
	if err != nil {
		return err
	}

	if err := s.records.Delete(ctx, kind, studentID, recordID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		return err
	}

	s.record(ctx, actor, "record.deleted", studentID, map[string]interface{}{"kind": string(kind), "record_id": recordID})
	return nil
}

func (s *recordService) ensureActiveStudent(ctx context.Context, studentID string) error {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return err
	}
	if student.IsDeleted {
		return ErrStudentNotFound
	}
	return nil
}

func (s *recordService) plain(value string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(value))
}

func (s *recordService) rich(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *recordService) record(ctx context.Context, actor ActivityActor, action, studentID string, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "student",
		EntityID:   studentID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}
