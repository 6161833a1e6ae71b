package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/service"
)

// RelayHandler serves the mail relay. Responses use the relay's own flat contract rather than the API
// envelope because existing clients read success and verificationCode at the top level.
type RelayHandler struct {
	relay   service.RelayService
	uploads service.ImageUploadService
	banner  string
	logger  zerolog.Logger
}

// NewRelayHandler constructs the relay handler. uploads may be nil.
func NewRelayHandler(relay service.RelayService, uploads service.ImageUploadService, banner string, logger zerolog.Logger) *RelayHandler {
	return &RelayHandler{
		relay:   relay,
		uploads: uploads,
		banner:  banner,
		logger:  logger.With().Str("component", "relay_handler").Logger(),
	}
}

// Register wires the relay routes at the root of the app.
func (h *RelayHandler) Register(router fiber.Router) {
	router.Get("/", h.index)
	router.Get("/admin-status", h.status)
	router.Post("/send-verification-code", h.sendVerificationCode)
	router.Post("/upload", h.upload)
}

func (h *RelayHandler) index(c *fiber.Ctx) error {
	return c.SendString(h.banner)
}

func (h *RelayHandler) status(c *fiber.Ctx) error {
	return c.JSON(h.relay.Status())
}

func (h *RelayHandler) sendVerificationCode(c *fiber.Ctx) error {
	var payload dto.SendVerificationCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.SendVerificationCodeResponse{Success: false, Message: "invalid payload"})
	}

	result, err := h.relay.SendVerificationCode(requestContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.SendVerificationCodeResponse{Success: false, Message: "studentEmail and studentName are required"})
		}
		logger := requestLogger(h.logger, c)
		if errors.Is(err, service.ErrDeliveryFailed) {
			logger.Warn().Err(err).Msg("verification code not delivered")
		} else {
			logger.Error().Err(err).Msg("verification code request failed")
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.SendVerificationCodeResponse{Success: false, Message: "failed to send verification code"})
	}

	return c.JSON(dto.SendVerificationCodeResponse{
		Success:          true,
		Message:          "verification code sent",
		VerificationCode: result.Code,
		IdentityID:       result.IdentityID,
	})
}

func (h *RelayHandler) upload(c *fiber.Ctx) error {
	if h.uploads == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.RelayUploadResponse{Success: false, Message: service.ErrUploadsDisabled.Error()})
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.RelayUploadResponse{Success: false, Message: service.ErrUploadMissing.Error()})
	}

	result, err := h.uploads.Upload(requestContext(c), file)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrUploadMissing):
			status = fiber.StatusBadRequest
		case errors.Is(err, service.ErrUploadTooLarge):
			status = fiber.StatusRequestEntityTooLarge
		case errors.Is(err, service.ErrUploadTypeNotAllowed):
			status = fiber.StatusUnsupportedMediaType
		case errors.Is(err, service.ErrUploadsDisabled):
			status = fiber.StatusServiceUnavailable
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("relay upload failed")
		}
		return c.Status(status).JSON(dto.RelayUploadResponse{Success: false, Message: err.Error()})
	}

	return c.JSON(result)
}
