package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-roster-api/internal/handler"
	"github.com/noah-isme/gema-roster-api/internal/middleware"
	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
	"github.com/noah-isme/gema-roster-api/internal/router"
	"github.com/noah-isme/gema-roster-api/internal/service"
	"github.com/noah-isme/gema-roster-api/pkg/issuer"
)

const testJWTSecret = "handler-test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

// countingIssuer hands out predictable codes.
type countingIssuer struct {
	mu    sync.Mutex
	count int
	err   error
}

func (i *countingIssuer) Issue(_ context.Context, _, _ string) (issuer.Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return issuer.Result{}, i.err
	}
	i.count++
	return issuer.Result{Code: []string{"AAA111", "BBB222", "CCC333", "DDD444"}[(i.count-1)%4]}, nil
}

type apiFixture struct {
	app      *fiber.App
	db       *gorm.DB
	sessions service.SessionService
	auth     service.AuthService
	issuer   *countingIssuer
}

func newAPIFixture(t *testing.T) *apiFixture {
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
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	tx := repository.NewTransactor(db)

	users := repository.NewUserProfileRepository(db)
	students := repository.NewStudentProfileRepository(db)
	classes := repository.NewClassRepository(db)
	records := repository.NewStudentRecordRepository(db)

	sessions := service.NewSessionService(nil, "test", nil, time.Hour, log)
	identities := service.NewIdentityStore(repository.NewIdentityRepository(db), repository.NewUserProfileRepository(db), bcrypt.MinCost, log)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), log)
	codes := &countingIssuer{}

	verifier := service.NewVerificationService(students, identities, codes, nil, 0, activity, log)
	auth := service.NewAuthService(identities, users, students, tx, sessions, activity, log)
	tokens, err := service.NewTokenService(testJWTSecret, "test", time.Hour)
	require.NoError(t, err)

	app := fiber.New()
	middleware.Register(app, middleware.Config{})
	router.Register(app, router.Dependencies{
		AppName:          "test",
		Health:           handler.HealthInfo{Service: "test", Environment: "test"},
		AuthHandler:      handler.NewAuthHandler(auth, tokens, verifier, validate, log),
		SessionHandler:   handler.NewSessionHandler(sessions, auth, log),
		ClassHandler:     handler.NewClassHandler(service.NewClassService(classes, students, tx, activity, validate, log), log),
		StudentHandler:   handler.NewStudentHandler(service.NewStudentService(students, classes, records, users, tx, nil, activity, validate, log), verifier, nil, log),
		RecordHandler:    handler.NewRecordHandler(service.NewRecordService(records, students, activity, validate, log), log),
		ActivityHandler:  handler.NewActivityHandler(activity, log),
		DashboardHandler: handler.NewDashboardHandler(service.NewDashboardService(repository.NewDashboardRepository(db), nil, 0, log), log),
		JWTMiddleware:    middleware.JWTProtected(testJWTSecret),
		ResendLimiter:    middleware.RateLimit("resend-code", 2, time.Minute),
	})

	return &apiFixture{app: app, db: db, sessions: sessions, auth: auth, issuer: codes}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

func detailKind(t *testing.T, env envelope) string {
	t.Helper()
	var details map[string]interface{}
	if len(env.Details) == 0 {
		return ""
	}
	require.NoError(t, json.Unmarshal(env.Details, &details))
	kind, _ := details["kind"].(string)
	return kind
}

// staffToken registers a teacher and signs them in.
func (f *apiFixture) staffToken(t *testing.T) string {
	t.Helper()

	status, _ := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Teacher", "email": "teacher@school.test", "password": "secret123", "role": "teacher",
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "teacher@school.test", "password": "secret123", "session_id": "staff-session",
	})
	require.Equal(t, http.StatusOK, status)

	var login struct {
		Token string `json:"token"`
	}
	decodeData(t, env, &login)
	require.NotEmpty(t, login.Token)
	return login.Token
}

// enrol creates a class and a student through the API and returns the student id.
func (f *apiFixture) enrol(t *testing.T, token, email string) string {
	t.Helper()

	status, env := f.do(t, http.MethodPost, "/api/v1/classes", token, map[string]string{"name": "10A"})
	require.Equal(t, http.StatusCreated, status)
	var class struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &class)

	status, env = f.do(t, http.MethodPost, "/api/v1/students", token, map[string]string{
		"name": "Lan", "email": email, "class_id": class.ID,
	})
	require.Equal(t, http.StatusCreated, status)
	var student struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &student)
	require.NotEmpty(t, student.ID)
	return student.ID
}

var errRelayDown = errors.New("relay down")
