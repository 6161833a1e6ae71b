package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/observability"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

const maxPasswordLength = 128

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var errProfilePending = errors.New("identity has no profile yet")

// PrincipalKind separates staff sign-ins from student sign-ins.
type PrincipalKind string

const (
	PrincipalStaff   PrincipalKind = "staff"
	PrincipalStudent PrincipalKind = "student"
)

// LoginResult describes who signed in.
type LoginResult struct {
	Kind       PrincipalKind
	Role       models.Role
	StudentID  string
	IdentityID string
	Email      string
	SessionID  string
}

// AuthService resolves sign-ins and registrations against the identity and profile stores.
type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (LoginResult, error)
	Register(ctx context.Context, req dto.RegisterRequest) (dto.RegisterResponse, error)
	Logout(ctx context.Context, sessionID string) error
	// ResolveIdentity maps an already authenticated identity to the principal it stands for.
	ResolveIdentity(ctx context.Context, identityID string) (LoginResult, error)
}

type authService struct {
	identities IdentityStore
	users      repository.UserProfileRepository
	students   repository.StudentProfileRepository
	tx         repository.Transactor
	sessions   SessionService
	activity   ActivityRecorder
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewAuthService constructs the authentication service.
func NewAuthService(identities IdentityStore, users repository.UserProfileRepository, students repository.StudentProfileRepository, tx repository.Transactor, sessions SessionService, activity ActivityRecorder, logger zerolog.Logger) AuthService {
	return &authService{
		identities: identities,
		users:      users,
		students:   students,
		tx:         tx,
		sessions:   sessions,
		activity:   activity,
		logger:     logger.With().Str("component", "auth_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-roster-api/internal/service/auth"),
	}
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (LoginResult, error) {
	email, ok := normalizeLoginEmail(req.Email)
	if !ok || len(req.Password) == 0 || len(req.Password) > maxPasswordLength {
		observability.LoginAttempts().WithLabelValues("none", AuthErrorKind(ErrInvalidFormat)).Inc()
		return LoginResult{}, ErrInvalidFormat
	}
	if strings.TrimSpace(req.SessionID) == "" {
		observability.LoginAttempts().WithLabelValues("none", AuthErrorKind(ErrInvalidFormat)).Inc()
		return LoginResult{}, ErrInvalidFormat
	}

	ctx, span := s.tracer.Start(ctx, "auth.login", trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	logger := s.logger.With().Str("email", maskEmail(email)).Str("session_id", req.SessionID).Logger()

	activeStudents, err := s.students.ListActiveByEmail(ctx, email)
	if err != nil {
		return s.fail(span, "none", storeError("students.list_active", err))
	}

	pending := false
	identity, err := s.identities.VerifyCredential(ctx, email, req.Password)
	switch {
	case err == nil:
		result, err := s.completeStaffPath(ctx, req, identity, activeStudents)
		if errors.Is(err, errProfilePending) {
			logger.Info().Msg("identity provisioned by relay has no profile yet, continuing as student")
			pending = true
			break
		}
		if err != nil {
			logger.Warn().Str("kind", AuthErrorKind(err)).Msg("credential accepted but sign-in rejected")
			return s.fail(span, "staff", err)
		}
		span.SetAttributes(attribute.String("auth.principal", string(result.Kind)))
		observability.LoginAttempts().WithLabelValues("staff", "success").Inc()
		logger.Info().Str("role", result.Role.String()).Msg("signed in with identity credential")
		return result, nil
	case errors.Is(err, ErrCredentialNotFound), errors.Is(err, ErrCredentialMismatch):
	default:
		return s.fail(span, "staff", storeError("identities.verify", err))
	}

	result, err := s.studentBranch(ctx, req.SessionID, email, req.Password, activeStudents)
	if err != nil {
		// The staff step left the session on the profile-less identity.
		if pending {
			s.signOutRejected(ctx, req.SessionID)
		}
		return s.fail(span, "student", err)
	}

	observability.LoginAttempts().WithLabelValues("student", "success").Inc()
	logger.Info().Str("student_id", result.StudentID).Msg("signed in with verification code")
	return result, nil
}

// completeStaffPath runs once the identity store accepted the credential. The session is signed in
// first and signed out again on every rejection. An identity without a profile whose credential is the
// current code of the only active student was provisioned by the relay; that case reports
// errProfilePending and keeps the session so the student branch can finish the sign-in.
func (s *authService) completeStaffPath(ctx context.Context, req dto.LoginRequest, identity models.Identity, activeStudents []models.StudentProfile) (LoginResult, error) {
	if err := s.sessions.SignIn(ctx, req.SessionID, SessionIdentity{IdentityID: identity.ID, Email: identity.Email}); err != nil {
		return LoginResult{}, storeError("sessions.sign_in", err)
	}

	result, student, err := s.resolve(ctx, identity.ID)
	if errors.Is(err, ErrOrphanedIdentity) && len(activeStudents) == 1 &&
		activeStudents[0].HasCode() && *activeStudents[0].VerificationCode == req.Password {
		return LoginResult{}, errProfilePending
	}
	if err == nil && student != nil && student.HasCode() && *student.VerificationCode != req.Password {
		err = ErrCodeMismatch
	}
	if err == nil && student != nil {
		err = s.linkStudentProfile(ctx, identity, *student)
	}
	if err != nil {
		s.signOutRejected(ctx, req.SessionID)
		return LoginResult{}, err
	}

	result.SessionID = req.SessionID
	return result, nil
}

// linkStudentProfile points the profile at the student record that matched, which differs from the
// stored reference after a deleted student was enrolled again.
func (s *authService) linkStudentProfile(ctx context.Context, identity models.Identity, student models.StudentProfile) error {
	studentRef := student.ID
	profile := models.UserProfile{
		ID:         identity.ID,
		Name:       student.Name,
		Email:      identity.Email,
		Role:       models.RoleStudent,
		StudentRef: &studentRef,
	}
	if err := s.users.Merge(ctx, &profile); err != nil {
		return storeError("users.merge", err)
	}
	return nil
}

func (s *authService) signOutRejected(ctx context.Context, sessionID string) {
	if err := s.sessions.SignOut(ctx, sessionID); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to sign out rejected session")
	}
}

func (s *authService) studentBranch(ctx context.Context, sessionID, email, password string, activeStudents []models.StudentProfile) (LoginResult, error) {
	switch {
	case len(activeStudents) == 0:
		return LoginResult{}, ErrEmailNotRegistered
	case len(activeStudents) > 1:
		return LoginResult{}, ErrAmbiguousStudentRecord
	}

	student := activeStudents[0]
	if !student.HasCode() {
		return LoginResult{}, ErrCodeNotIssued
	}
	if *student.VerificationCode != password {
		return LoginResult{}, ErrCodeMismatch
	}

	var identity models.Identity
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.identities.Upsert(ctx, email, password)
		if err != nil {
			return err
		}

		studentRef := student.ID
		profile := models.UserProfile{
			ID:         identity.ID,
			Name:       student.Name,
			Email:      email,
			Role:       models.RoleStudent,
			StudentRef: &studentRef,
			IsDeleted:  false,
		}
		if err := s.users.Merge(ctx, &profile); err != nil {
			return storeError("users.merge", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaffCredential) {
			return LoginResult{}, err
		}
		return LoginResult{}, storeError("auth.provision_student", err)
	}

	if err := s.sessions.SignIn(ctx, sessionID, SessionIdentity{IdentityID: identity.ID, Email: identity.Email}); err != nil {
		return LoginResult{}, storeError("sessions.sign_in", err)
	}

	return LoginResult{
		Kind:       PrincipalStudent,
		Role:       models.RoleStudent,
		StudentID:  student.ID,
		IdentityID: identity.ID,
		Email:      identity.Email,
		SessionID:  sessionID,
	}, nil
}

func (s *authService) ResolveIdentity(ctx context.Context, identityID string) (LoginResult, error) {
	result, _, err := s.resolve(ctx, identityID)
	return result, err
}

func (s *authService) resolve(ctx context.Context, identityID string) (LoginResult, *models.StudentProfile, error) {
	profile, err := s.users.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LoginResult{}, nil, ErrOrphanedIdentity
		}
		return LoginResult{}, nil, storeError("users.get", err)
	}
	if profile.IsDeleted {
		return LoginResult{}, nil, ErrAccountDeleted
	}

	result := LoginResult{IdentityID: profile.ID, Email: profile.Email, Role: profile.Role}

	switch profile.Role {
	case models.RoleAdmin, models.RoleTeacher:
		result.Kind = PrincipalStaff
		return result, nil, nil
	case models.RoleStudent:
		students, err := s.students.ListActiveByEmail(ctx, profile.Email)
		if err != nil {
			return LoginResult{}, nil, storeError("students.list_active", err)
		}
		switch {
		case len(students) == 0:
			return LoginResult{}, nil, ErrStudentRecordMissing
		case len(students) > 1:
			return LoginResult{}, nil, ErrAmbiguousStudentRecord
		}
		result.Kind = PrincipalStudent
		result.StudentID = students[0].ID
		return result, &students[0], nil
	default:
		return LoginResult{}, nil, storeError("users.get", fmt.Errorf("profile %s has unknown role %q", profile.ID, profile.Role))
	}
}

func (s *authService) Register(ctx context.Context, req dto.RegisterRequest) (dto.RegisterResponse, error) {
	ctx, span := s.tracer.Start(ctx, "auth.register")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	email, ok := normalizeLoginEmail(req.Email)
	role, roleErr := models.ParseRole(req.Role)
	if name == "" || !ok || len(req.Password) < 6 || len(req.Password) > 72 || roleErr != nil {
		span.SetStatus(codes.Error, "invalid registration")
		return dto.RegisterResponse{}, ErrInvalidFormat
	}

	students, err := s.students.ListActiveByEmail(ctx, email)
	if err != nil {
		return dto.RegisterResponse{}, storeError("students.list_active", err)
	}
	profiles, err := s.users.ListActiveByEmail(ctx, email)
	if err != nil {
		return dto.RegisterResponse{}, storeError("users.list_active", err)
	}
	if len(students) > 0 || len(profiles) > 0 {
		return dto.RegisterResponse{}, ErrEmailTaken
	}

	response := dto.RegisterResponse{Email: email, Role: role.String()}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		identity, err := s.identities.Create(ctx, email, req.Password)
		if err != nil {
			if errors.Is(err, ErrIdentityExists) {
				return ErrEmailTaken
			}
			return err
		}
		response.IdentityID = identity.ID

		profile := models.UserProfile{ID: identity.ID, Name: name, Email: email, Role: role}
		if role == models.RoleStudent {
			student := models.StudentProfile{Name: name, Email: email}
			if err := s.students.Create(ctx, &student); err != nil {
				return storeError("students.create", err)
			}
			profile.StudentRef = &student.ID
			response.StudentID = student.ID
		}

		if err := s.users.Create(ctx, &profile); err != nil {
			return storeError("users.create", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		return dto.RegisterResponse{}, err
	}

	s.record(ctx, ActivityEntry{
		ActorID:    response.IdentityID,
		ActorRole:  role.String(),
		Action:     "account.registered",
		EntityType: "identity",
		EntityID:   response.IdentityID,
		Metadata:   map[string]interface{}{"email": email, "role": role.String()},
	})

	s.logger.Info().Str("email", maskEmail(email)).Str("role", role.String()).Msg("account registered")
	return response, nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.SignOut(ctx, sessionID)
}

func (s *authService) fail(span trace.Span, path string, err error) (LoginResult, error) {
	kind := AuthErrorKind(err)
	observability.LoginAttempts().WithLabelValues(path, kind).Inc()
	span.SetAttributes(attribute.String("auth.error_kind", kind))
	if errors.Is(err, ErrStore) {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("path", path).Msg("sign-in failed on store error")
	}
	span.SetStatus(codes.Error, kind)
	return LoginResult{}, err
}

func (s *authService) record(ctx context.Context, entry ActivityEntry) {
	if s.activity == nil {
		return
	}
	if _, err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to record activity")
	}
}

func normalizeLoginEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 || !emailPattern.MatchString(email) {
		return "", false
	}
	return email, true
}
