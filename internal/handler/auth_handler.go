package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/service"
	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// AuthHandler serves sign-in, registration and code resend endpoints.
type AuthHandler struct {
	auth      service.AuthService
	tokens    service.TokenService
	verifier  service.VerificationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(auth service.AuthService, tokens service.TokenService, verifier service.VerificationService, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		tokens:    tokens,
		verifier:  verifier,
		validator: validate,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Login resolves the credential into a staff or student principal and issues an access token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", fiber.Map{"kind": "invalid_format"})
	}

	payload.SessionID = strings.TrimSpace(payload.SessionID)
	if payload.SessionID == "" {
		payload.SessionID = strings.TrimSpace(c.Get("X-Session-ID"))
	}
	if payload.SessionID == "" {
		payload.SessionID = uuid.NewString()
	}

	result, err := h.auth.Login(requestContext(c), payload)
	if err != nil {
		return sendAuthError(c, h.logger, err)
	}
	result.SessionID = payload.SessionID

	token, err := h.tokens.Issue(result)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to sign access token")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to issue token")
	}

	return utils.SendSuccess(c, "signed in", dto.LoginResponse{
		Kind:      string(result.Kind),
		Role:      result.Role.String(),
		StudentID: result.StudentID,
		SessionID: payload.SessionID,
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		Redirect:  landingRoute(result),
	})
}

// Register creates an identity together with its profile.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", fiber.Map{"kind": "invalid_format"})
	}

	response, err := h.auth.Register(requestContext(c), payload)
	if err != nil {
		return sendAuthError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account registered", response)
}

// Logout signs the session out. Every stream observing the session is notified.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var payload dto.LogoutRequest
	_ = c.BodyParser(&payload)
	if strings.TrimSpace(payload.SessionID) == "" {
		payload.SessionID = strings.TrimSpace(c.Get("X-Session-ID"))
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "session_id is required")
	}

	if err := h.auth.Logout(requestContext(c), payload.SessionID); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to sign session out")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to sign out")
	}

	return utils.SendSuccess(c, "signed out", fiber.Map{"session_id": payload.SessionID})
}

// ResendCode issues a fresh verification code for the student owning the email.
func (h *AuthHandler) ResendCode(c *fiber.Ctx) error {
	var payload dto.ResendCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "a valid email is required", fiber.Map{"kind": "invalid_format"})
	}

	issuance, err := h.verifier.ResendByEmail(requestContext(c), payload.Email)
	if err != nil {
		return sendIssuanceError(c, h.logger, err)
	}

	// The code only travels by email on this public route.
	return utils.SendSuccess(c, "verification code sent", dto.CodeIssuanceResponse{
		StudentID: issuance.StudentID,
		Email:     issuance.Email,
		IssuedAt:  issuance.IssuedAt,
	})
}

// Me echoes the authenticated principal from the access token.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "current principal", dto.MeResponse{
		IdentityID: userIDFromContext(c),
		Role:       userRoleFromContext(c),
		StudentID:  studentIDFromContext(c),
		SessionID:  sessionIDFromContext(c),
	})
}

func landingRoute(result service.LoginResult) string {
	if result.Kind == service.PrincipalStudent && result.StudentID != "" {
		return "/students/" + result.StudentID
	}
	return service.DestinationDashboard
}

func sendIssuanceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.Fail(c, fiber.StatusNotFound, "student not found", fiber.Map{"kind": "student_not_found"})
	case errors.Is(err, service.ErrResendTooSoon):
		return utils.Fail(c, fiber.StatusTooManyRequests, "a code was sent recently, try again later", fiber.Map{"kind": "resend_too_soon"})
	default:
		return sendAuthError(c, logger, err)
	}
}
