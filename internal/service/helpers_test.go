package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
	"github.com/noah-isme/gema-roster-api/pkg/issuer"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// stubIssuer hands out queued codes, or fails when err is set.
type stubIssuer struct {
	mu     sync.Mutex
	codes  []string
	err    error
	calls  int
	emails []string
}

func (s *stubIssuer) Issue(ctx context.Context, email, name string) (issuer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.emails = append(s.emails, email)
	if s.err != nil {
		return issuer.Result{}, s.err
	}
	if len(s.codes) == 0 {
		return issuer.Result{}, errors.New("no code queued")
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return issuer.Result{Code: code}, nil
}

func (s *stubIssuer) queue(codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, codes...)
}

// rosterFixture wires every roster service against one sqlite database.
type rosterFixture struct {
	db         *gorm.DB
	identities IdentityStore
	identRepo  repository.IdentityRepository
	users      repository.UserProfileRepository
	students   repository.StudentProfileRepository
	classes    repository.ClassRepository
	records    repository.StudentRecordRepository
	activity   ActivityService
	sessions   SessionService
	issuer     *stubIssuer
	auth       AuthService
	verifier   VerificationService
	roster     StudentService
	classSvc   ClassService
}

func newRosterFixture(t *testing.T) *rosterFixture {
	t.Helper()

	db := setupServiceDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	tx := repository.NewTransactor(db)

	f := &rosterFixture{
		db:        db,
		identRepo: repository.NewIdentityRepository(db),
		users:     repository.NewUserProfileRepository(db),
		students:  repository.NewStudentProfileRepository(db),
		classes:   repository.NewClassRepository(db),
		records:   repository.NewStudentRecordRepository(db),
		sessions:  NewSessionService(nil, "", nil, time.Hour, testLogger()),
		issuer:    &stubIssuer{},
	}
	f.identities = NewIdentityStore(f.identRepo, f.users, bcrypt.MinCost, testLogger())
	f.activity = NewActivityService(repository.NewActivityLogRepository(db), testLogger())
	f.auth = NewAuthService(f.identities, f.users, f.students, tx, f.sessions, f.activity, testLogger())
	f.verifier = NewVerificationService(f.students, f.identities, f.issuer, nil, 0, f.activity, testLogger())
	f.roster = NewStudentService(f.students, f.classes, f.records, f.users, tx, nil, f.activity, validate, testLogger())
	f.classSvc = NewClassService(f.classes, f.students, tx, f.activity, validate, testLogger())
	return f
}

func (f *rosterFixture) createClass(t *testing.T, name string) models.Class {
	t.Helper()
	class := models.Class{Name: name}
	require.NoError(t, f.classes.Create(context.Background(), &class))
	return class
}

func (f *rosterFixture) createStudent(t *testing.T, name, email, classID string) models.StudentProfile {
	t.Helper()
	student := models.StudentProfile{Name: name, Email: email, ClassID: classID}
	require.NoError(t, f.students.Create(context.Background(), &student))
	return student
}

func staffActor() ActivityActor {
	return ActivityActor{ID: "staff-1", Role: "teacher"}
}
