package service

import (
	"context"
	"errors"
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

// ErrClassNotFound indicates the class does not exist.
var ErrClassNotFound = errors.New("class not found")

// StudentService manages roster students.
type StudentService interface {
	Create(ctx context.Context, payload dto.StudentCreateRequest, actor ActivityActor) (dto.StudentResponse, error)
	Get(ctx context.Context, id string) (dto.StudentResponse, error)
	List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error)
	Update(ctx context.Context, id string, payload dto.StudentUpdateRequest, actor ActivityActor) (dto.StudentResponse, error)
	Delete(ctx context.Context, id string, hard bool, actor ActivityActor) error
}

type studentService struct {
	students  repository.StudentProfileRepository
	classes   repository.ClassRepository
	records   repository.StudentRecordRepository
	users     repository.UserProfileRepository
	tx        repository.Transactor
	verifier  VerificationService
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	issueTTL  time.Duration
}

// NewStudentService constructs the roster student service. verifier may be nil, in which case new
// students wait for a manual code issuance.
func NewStudentService(students repository.StudentProfileRepository, classes repository.ClassRepository, records repository.StudentRecordRepository, users repository.UserProfileRepository, tx repository.Transactor, verifier VerificationService, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) StudentService {
	return &studentService{
		students:  students,
		classes:   classes,
		records:   records,
		users:     users,
		tx:        tx,
		verifier:  verifier,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "student_service").Logger(),
		issueTTL:  30 * time.Second,
	}
}

func (s *studentService) Create(ctx context.Context, payload dto.StudentCreateRequest, actor ActivityActor) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}

	class, err := s.classes.GetByID(ctx, strings.TrimSpace(payload.ClassID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentResponse{}, ErrClassNotFound
		}
		return dto.StudentResponse{}, err
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))
	existing, err := s.students.ListActiveByEmail(ctx, email)
	if err != nil {
		return dto.StudentResponse{}, err
	}
	if len(existing) > 0 {
		return dto.StudentResponse{}, ErrEmailTaken
	}
	if s.users != nil {
		profiles, err := s.users.ListActiveByEmail(ctx, email)
		if err != nil {
			return dto.StudentResponse{}, err
		}
		for _, profile := range profiles {
			if profile.Role != models.RoleStudent {
				return dto.StudentResponse{}, ErrEmailTaken
			}
		}
	}

	student := models.StudentProfile{
		Name:        s.clean(payload.Name),
		Email:       email,
		ClassID:     class.ID,
		ClassName:   class.Name,
		StudentCode: s.clean(payload.StudentCode),
		Phone:       strings.TrimSpace(payload.Phone),
		Gender:      strings.TrimSpace(payload.Gender),
		Birthdate:   strings.TrimSpace(payload.Birthdate),
		PhotoURL:    strings.TrimSpace(payload.PhotoURL),
	}
	if student.Name == "" {
		return dto.StudentResponse{}, ErrInvalidFormat
	}

	if err := s.students.Create(ctx, &student); err != nil {
		return dto.StudentResponse{}, err
	}

	s.record(ctx, actor, "student.created", student.ID, map[string]interface{}{
		"class_id": class.ID,
		"email":    student.Email,
	})

	if s.verifier != nil {
		go s.issueInitialCode(context.WithoutCancel(ctx), student.ID, actor)
	}

	return dto.NewStudentResponse(student), nil
}

// issueInitialCode runs after the create request returned. A failure leaves the student in the
// no-code state until staff resends.
func (s *studentService) issueInitialCode(ctx context.Context, studentID string, actor ActivityActor) {
	ctx, cancel := context.WithTimeout(ctx, s.issueTTL)
	defer cancel()

	if _, err := s.verifier.IssueOrResendCode(ctx, studentID, actor); err != nil {
		s.logger.Warn().Err(err).Str("student_id", studentID).Msg("initial verification code not delivered")
	}
}

func (s *studentService) Get(ctx context.Context, id string) (dto.StudentResponse, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return dto.StudentResponse{}, err
	}
	if student.IsDeleted {
		return dto.StudentResponse{}, ErrStudentNotFound
	}

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error) {
	filter := repository.StudentProfileFilter{
		Search:   strings.TrimSpace(req.Search),
		ClassID:  strings.TrimSpace(req.ClassID),
		Sort:     studentSort(req.Sort),
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return dto.StudentListResponse{}, err
	}

	return dto.StudentListResponse{
		Items:      dto.NewStudentResponseSlice(students),
		Pagination: paginate(req.Page, req.PageSize, total),
	}, nil
}

func (s *studentService) Update(ctx context.Context, id string, payload dto.StudentUpdateRequest, actor ActivityActor) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}

	updates := make(map[string]interface{})
	changedFields := make([]string, 0)

	if payload.Name != nil {
		name := s.clean(*payload.Name)
		if name == "" {
			return dto.StudentResponse{}, ErrInvalidFormat
		}
		updates["name"] = name
		changedFields = append(changedFields, "name")
	}
	if payload.StudentCode != nil {
		updates["student_code"] = s.clean(*payload.StudentCode)
		changedFields = append(changedFields, "student_code")
	}
	if payload.Phone != nil {
		updates["phone"] = strings.TrimSpace(*payload.Phone)
		changedFields = append(changedFields, "phone")
	}
	if payload.Gender != nil {
		updates["gender"] = strings.TrimSpace(*payload.Gender)
		changedFields = append(changedFields, "gender")
	}
	if payload.Birthdate != nil {
		updates["birthdate"] = strings.TrimSpace(*payload.Birthdate)
		changedFields = append(changedFields, "birthdate")
	}
	if payload.PhotoURL != nil {
		updates["photo_url"] = strings.TrimSpace(*payload.PhotoURL)
		changedFields = append(changedFields, "photo_url")
	}

	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	student, err := s.students.Update(ctx, id, updates)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return dto.StudentResponse{}, err
	}

	s.record(ctx, actor, "student.updated", id, map[string]interface{}{"fields": changedFields})
	return dto.NewStudentResponse(student), nil
}

// Delete removes a student. A soft delete only flags the roster row; a hard delete drops the row,
// its records and the student's user profiles in one transaction. Identities are never removed.
func (s *studentService) Delete(ctx context.Context, id string, hard bool, actor ActivityActor) error {
	if !hard {
		if err := s.students.SoftDelete(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStudentNotFound
			}
			return err
		}
		s.record(ctx, actor, "student.deleted", id, map[string]interface{}{"hard": false})
		s.logger.Info().Str("student_id", id).Msg("student soft deleted")
		return nil
	}

	var recordsRemoved, profilesRemoved int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		student, err := s.students.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if recordsRemoved, err = s.records.DeleteAllForStudent(ctx, id); err != nil {
			return err
		}
		if profilesRemoved, err = s.users.DeleteForStudent(ctx, id, student.Email); err != nil {
			return err
		}
		return s.students.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return err
	}

	s.record(ctx, actor, "student.deleted", id, map[string]interface{}{
		"hard":             true,
		"records_removed":  recordsRemoved,
		"profiles_removed": profilesRemoved,
	})
	s.logger.Info().Str("student_id", id).Int64("records_removed", recordsRemoved).Msg("student hard deleted")
	return nil
}

func (s *studentService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *studentService) record(ctx context.Context, actor ActivityActor, action, studentID string, metadata map[string]interface{}) {
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

func studentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "name":
		return "name ASC"
	case "-name":
		return "name DESC"
	case "created_at":
		return "created_at ASC"
	default:
		return "created_at DESC"
	}
}
