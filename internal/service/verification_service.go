package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/observability"
	"github.com/noah-isme/gema-roster-api/internal/repository"
	"github.com/noah-isme/gema-roster-api/pkg/issuer"
)

var (
	// ErrStudentNotFound indicates the student does not exist or has been deleted.
	ErrStudentNotFound = errors.New("student not found")
	// ErrResendTooSoon indicates a code was issued for the student within the cooldown window.
	ErrResendTooSoon = errors.New("verification code was issued recently")
)

// CodeIssuer generates a code and delivers it to the student.
type CodeIssuer interface {
	Issue(ctx context.Context, email, name string) (issuer.Result, error)
}

// CodeIssuance describes a delivered code.
type CodeIssuance struct {
	StudentID string
	Email     string
	Code      string
	IssuedAt  time.Time
}

// VerificationService issues and re-issues student verification codes.
type VerificationService interface {
	IssueOrResendCode(ctx context.Context, studentID string, actor ActivityActor) (CodeIssuance, error)
	ResendByEmail(ctx context.Context, email string) (CodeIssuance, error)
}

type verificationService struct {
	students   repository.StudentProfileRepository
	identities IdentityStore
	issuer     CodeIssuer
	cache      *redis.Client
	cooldown   time.Duration
	activity   ActivityRecorder
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewVerificationService constructs the verification code service. A nil cache or a zero cooldown
// disables the resend cooldown.
func NewVerificationService(students repository.StudentProfileRepository, identities IdentityStore, codeIssuer CodeIssuer, cache *redis.Client, cooldown time.Duration, activity ActivityRecorder, logger zerolog.Logger) VerificationService {
	return &verificationService{
		students:   students,
		identities: identities,
		issuer:     codeIssuer,
		cache:      cache,
		cooldown:   cooldown,
		activity:   activity,
		logger:     logger.With().Str("component", "verification_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-roster-api/internal/service/verification"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *verificationService) IssueOrResendCode(ctx context.Context, studentID string, actor ActivityActor) (CodeIssuance, error) {
	ctx, span := s.tracer.Start(ctx, "verification.issue", trace.WithAttributes(attribute.String("student.id", studentID)))
	defer span.End()

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CodeIssuance{}, ErrStudentNotFound
		}
		span.RecordError(err)
		return CodeIssuance{}, storeError("students.get", err)
	}
	if student.IsDeleted {
		return CodeIssuance{}, ErrStudentNotFound
	}

	return s.issue(ctx, span, student, actor)
}

func (s *verificationService) ResendByEmail(ctx context.Context, email string) (CodeIssuance, error) {
	normalized, ok := normalizeLoginEmail(email)
	if !ok {
		return CodeIssuance{}, ErrInvalidFormat
	}

	ctx, span := s.tracer.Start(ctx, "verification.resend_by_email")
	defer span.End()

	students, err := s.students.ListActiveByEmail(ctx, normalized)
	if err != nil {
		span.RecordError(err)
		return CodeIssuance{}, storeError("students.list_active", err)
	}
	switch {
	case len(students) == 0:
		return CodeIssuance{}, ErrEmailNotRegistered
	case len(students) > 1:
		return CodeIssuance{}, ErrAmbiguousStudentRecord
	}

	return s.issue(ctx, span, students[0], ActivityActor{ID: students[0].ID, Role: models.RoleStudent.String()})
}

func (s *verificationService) issue(ctx context.Context, span trace.Span, student models.StudentProfile, actor ActivityActor) (CodeIssuance, error) {
	logger := s.logger.With().Str("student_id", student.ID).Str("email", maskEmail(student.Email)).Logger()

	cooldownKey := ""
	if s.cache != nil && s.cooldown > 0 {
		cooldownKey = fmt.Sprintf("verification:cooldown:%s", student.ID)
		ok, err := s.cache.SetNX(ctx, cooldownKey, 1, s.cooldown).Result()
		if err != nil {
			span.RecordError(err)
			return CodeIssuance{}, storeError("verification.cooldown", err)
		}
		if !ok {
			observability.VerificationCodes().WithLabelValues("throttled").Inc()
			span.SetStatus(codes.Error, "cooldown active")
			return CodeIssuance{}, ErrResendTooSoon
		}
	}

	result, err := s.issuer.Issue(ctx, student.Email, student.Name)
	if err == nil && result.Code == "" {
		err = errors.New("issuer returned an empty code")
	}
	if err != nil {
		if cooldownKey != "" {
			if delErr := s.cache.Del(ctx, cooldownKey).Err(); delErr != nil {
				logger.Warn().Err(delErr).Msg("failed to clear resend cooldown")
			}
		}
		observability.VerificationCodes().WithLabelValues("delivery_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		logger.Warn().Err(err).Msg("verification code delivery failed")
		return CodeIssuance{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	issuedAt := s.now()
	if err := s.students.SetVerificationCode(ctx, student.ID, result.Code, issuedAt); err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CodeIssuance{}, ErrStudentNotFound
		}
		return CodeIssuance{}, storeError("students.set_code", err)
	}

	s.rotateCredential(ctx, logger, student.Email, result.Code)

	if s.activity != nil {
		if _, err := s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "student.code_issued",
			EntityType: "student",
			EntityID:   student.ID,
			Metadata:   map[string]interface{}{"resend": student.HasCode()},
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to record code issuance")
		}
	}

	observability.VerificationCodes().WithLabelValues("issued").Inc()
	span.SetStatus(codes.Ok, "issued")
	logger.Info().Bool("resend", student.HasCode()).Msg("verification code issued")

	return CodeIssuance{StudentID: student.ID, Email: student.Email, Code: result.Code, IssuedAt: issuedAt}, nil
}

// rotateCredential keeps an existing identity in step with the newest code. Failures are logged only.
func (s *verificationService) rotateCredential(ctx context.Context, logger zerolog.Logger, email, code string) {
	if s.identities == nil {
		return
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrCredentialNotFound) {
			logger.Warn().Err(err).Msg("failed to look up identity for credential rotation")
		}
		return
	}

	if err := s.identities.SetCredential(ctx, identity.ID, code); err != nil {
		if errors.Is(err, ErrStaffCredential) {
			logger.Info().Msg("identity belongs to a staff account, credential left unchanged")
			return
		}
		logger.Warn().Err(err).Msg("failed to rotate identity credential")
	}
}
