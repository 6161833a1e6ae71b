package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/service"
	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// ClassHandler serves homeroom class endpoints.
type ClassHandler struct {
	classes service.ClassService
	logger  zerolog.Logger
}

// NewClassHandler constructs the handler.
func NewClassHandler(classes service.ClassService, logger zerolog.Logger) *ClassHandler {
	return &ClassHandler{
		classes: classes,
		logger:  logger.With().Str("component", "class_handler").Logger(),
	}
}

// Register attaches class routes. The caller is expected to guard the group.
func (h *ClassHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
}

func (h *ClassHandler) list(c *fiber.Ctx) error {
	classes, err := h.classes.List(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list classes")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load classes")
	}
	return utils.SendSuccess(c, "classes retrieved", classes)
}

func (h *ClassHandler) create(c *fiber.Ctx) error {
	var payload dto.ClassCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	class, err := h.classes.Create(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		if isValidationError(err) || errors.Is(err, service.ErrInvalidFormat) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid class data", fiber.Map{"error": err.Error()})
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create class")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create class")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "class created", class)
}

func (h *ClassHandler) update(c *fiber.Ctx) error {
	var payload dto.ClassUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	class, err := h.classes.Update(requestContext(c), c.Params("id"), payload, activityActorFromContext(c))
	if err != nil {
		switch {
		case isValidationError(err), errors.Is(err, service.ErrInvalidFormat):
			return utils.Fail(c, fiber.StatusBadRequest, "invalid class data", fiber.Map{"error": err.Error()})
		case errors.Is(err, service.ErrClassNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "class not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to update class")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to update class")
	}

	return utils.SendSuccess(c, "class updated", class)
}

func (h *ClassHandler) delete(c *fiber.Ctx) error {
	result, err := h.classes.Delete(requestContext(c), c.Params("id"), activityActorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrClassNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "class not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to delete class")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete class")
	}

	return utils.SendSuccess(c, "class deleted", result)
}
