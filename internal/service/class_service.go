package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

// ClassService manages homeroom classes.
type ClassService interface {
	Create(ctx context.Context, payload dto.ClassCreateRequest, actor ActivityActor) (dto.ClassResponse, error)
	List(ctx context.Context) ([]dto.ClassResponse, error)
	Update(ctx context.Context, id string, payload dto.ClassUpdateRequest, actor ActivityActor) (dto.ClassResponse, error)
	Delete(ctx context.Context, id string, actor ActivityActor) (dto.ClassDeleteResponse, error)
}

type classService struct {
	classes   repository.ClassRepository
	students  repository.StudentProfileRepository
	tx        repository.Transactor
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewClassService constructs the class service.
func NewClassService(classes repository.ClassRepository, students repository.StudentProfileRepository, tx repository.Transactor, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) ClassService {
	return &classService{
		classes:   classes,
		students:  students,
		tx:        tx,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "class_service").Logger(),
	}
}

func (s *classService) Create(ctx context.Context, payload dto.ClassCreateRequest, actor ActivityActor) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}

	class := models.Class{
		Name:        strings.TrimSpace(s.sanitizer.Sanitize(payload.Name)),
		Grade:       strings.TrimSpace(s.sanitizer.Sanitize(payload.Grade)),
		TeacherName: strings.TrimSpace(s.sanitizer.Sanitize(payload.TeacherName)),
	}
	if class.Name == "" {
		return dto.ClassResponse{}, ErrInvalidFormat
	}

	if err := s.classes.Create(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}

	s.record(ctx, actor, "class.created", class.ID, map[string]interface{}{"name": class.Name})
	return dto.NewClassResponse(class), nil
}

func (s *classService) List(ctx context.Context) ([]dto.ClassResponse, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ClassResponse, 0, len(classes))
	for _, class := range classes {
		responses = append(responses, dto.NewClassResponse(class))
	}
	return responses, nil
}

// Update edits a class. A new name is copied onto every student of the class in the same transaction.
func (s *classService) Update(ctx context.Context, id string, payload dto.ClassUpdateRequest, actor ActivityActor) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}

	updates := make(map[string]interface{})
	changedFields := make([]string, 0, 3)
	if payload.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*payload.Name))
		if name == "" {
			return dto.ClassResponse{}, ErrInvalidFormat
		}
		updates["name"] = name
		changedFields = append(changedFields, "name")
	}
	if payload.Grade != nil {
		updates["grade"] = strings.TrimSpace(s.sanitizer.Sanitize(*payload.Grade))
		changedFields = append(changedFields, "grade")
	}
	if payload.TeacherName != nil {
		updates["teacher_name"] = strings.TrimSpace(s.sanitizer.Sanitize(*payload.TeacherName))
		changedFields = append(changedFields, "teacher_name")
	}

	var class models.Class
	var renamed int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if len(updates) == 0 {
			class, err = s.classes.GetByID(ctx, id)
			return err
		}
		if class, err = s.classes.Update(ctx, id, updates); err != nil {
			return err
		}
		if name, ok := updates["name"].(string); ok {
			renamed, err = s.students.RenameClass(ctx, id, name)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}

	if len(changedFields) > 0 {
		s.record(ctx, actor, "class.updated", id, map[string]interface{}{"fields": changedFields, "students_renamed": renamed})
	}
	return dto.NewClassResponse(class), nil
}

// Delete removes the class and soft deletes every active student in it.
func (s *classService) Delete(ctx context.Context, id string, actor ActivityActor) (dto.ClassDeleteResponse, error) {
	var removed int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.classes.GetByID(ctx, id); err != nil {
			return err
		}

		var err error
		if removed, err = s.students.SoftDeleteByClass(ctx, id); err != nil {
			return err
		}
		return s.classes.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassDeleteResponse{}, ErrClassNotFound
		}
		return dto.ClassDeleteResponse{}, err
	}

	s.record(ctx, actor, "class.deleted", id, map[string]interface{}{"students_removed": removed})
	s.logger.Info().Str("class_id", id).Int64("students_removed", removed).Msg("class deleted")

	return dto.ClassDeleteResponse{ID: id, StudentsRemoved: removed}, nil
}

func (s *classService) record(ctx context.Context, actor ActivityActor, action, classID string, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "class",
		EntityID:   classID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}
