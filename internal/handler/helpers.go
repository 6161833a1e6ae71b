package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/middleware"
	"github.com/noah-isme/gema-roster-api/internal/service"
	"github.com/noah-isme/gema-roster-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func localString(c *fiber.Ctx, key string) string {
	if value, ok := c.Locals(key).(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func userIDFromContext(c *fiber.Ctx) string {
	return localString(c, "user_id")
}

func userRoleFromContext(c *fiber.Ctx) string {
	return strings.ToLower(localString(c, "user_role"))
}

func studentIDFromContext(c *fiber.Ctx) string {
	return localString(c, "student_id")
}

func sessionIDFromContext(c *fiber.Ctx) string {
	return localString(c, "session_id")
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// authFailure is the fixed response for one error kind.
type authFailure struct {
	status  int
	message string
}

var authFailures = map[string]authFailure{
	"invalid_format":           {fiber.StatusBadRequest, "email or password has an invalid format"},
	"email_not_registered":     {fiber.StatusNotFound, "no account is registered for this email"},
	"email_taken":              {fiber.StatusConflict, "this email is already in use"},
	"code_not_issued":          {fiber.StatusForbidden, "no verification code has been issued yet, ask your teacher"},
	"code_mismatch":            {fiber.StatusUnauthorized, "the password or verification code is incorrect"},
	"account_deleted":          {fiber.StatusForbidden, "this account has been deleted"},
	"orphaned_identity":        {fiber.StatusForbidden, "this account has no profile, contact an administrator"},
	"student_record_missing":   {fiber.StatusForbidden, "student record not found, contact your teacher"},
	"ambiguous_student_record": {fiber.StatusConflict, "more than one student record uses this email, contact your teacher"},
	"delivery_failed":          {fiber.StatusBadGateway, "the verification code could not be delivered"},
	"store_error":              {fiber.StatusInternalServerError, "internal error, try again later"},
}

// sendAuthError maps an authentication error to its kind, status and fixed message.
func sendAuthError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	kind := service.AuthErrorKind(err)
	failure, ok := authFailures[kind]
	if !ok {
		failure = authFailures["store_error"]
	}
	if failure.status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Str("kind", kind).Msg("request failed")
	}
	return utils.Fail(c, failure.status, failure.message, fiber.Map{"kind": kind})
}
