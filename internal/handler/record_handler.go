package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/service"
	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// RecordHandler serves achievements, conduct, scores and notes of a student.
type RecordHandler struct {
	records service.RecordService
	logger  zerolog.Logger
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(records service.RecordService, logger zerolog.Logger) *RecordHandler {
	return &RecordHandler{
		records: records,
		logger:  logger.With().Str("component", "record_handler").Logger(),
	}
}

// List returns every record of one kind. Scores carry their summary as metadata.
func (h *RecordHandler) List(c *fiber.Ctx) error {
	ctx := requestContext(c)
	records, err := h.records.List(ctx, c.Params("id"), c.Params("kind"))
	if err != nil {
		return h.recordError(c, err, "failed to load records")
	}
	if !service.IsScoreKind(c.Params("kind")) {
		return utils.SendSuccess(c, "records retrieved", records)
	}

	summary, err := h.records.SummarizeScores(ctx, c.Params("id"))
	if err != nil {
		return h.recordError(c, err, "failed to summarize scores")
	}
	return utils.OK(c, records, "records retrieved", fiber.Map{"summary": summary})
}

// Create adds a record.
func (h *RecordHandler) Create(c *fiber.Ctx) error {
	var payload dto.RecordCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.records.Add(requestContext(c), c.Params("id"), c.Params("kind"), payload, activityActorFromContext(c))
	if err != nil {
		return h.recordError(c, err, "failed to add record")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "record added", record)
}

// Delete removes one record.
func (h *RecordHandler) Delete(c *fiber.Ctx) error {
	if err := h.records.Delete(requestContext(c), c.Params("id"), c.Params("kind"), c.Params("recordId"), activityActorFromContext(c)); err != nil {
		return h.recordError(c, err, "failed to delete record")
	}
	return utils.SendSuccess(c, "record deleted", fiber.Map{"id": c.Params("recordId")})
}

func (h *RecordHandler) recordError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err), errors.Is(err, service.ErrRecordInvalid):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid record data", fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownRecordKind):
		return utils.SendError(c, fiber.StatusNotFound, "unknown record kind")
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found")
	case errors.Is(err, service.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "record not found")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
