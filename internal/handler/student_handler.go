package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/service"
	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// StudentHandler serves the roster endpoints.
type StudentHandler struct {
	students service.StudentService
	verifier service.VerificationService
	uploads  service.ImageUploadService
	logger   zerolog.Logger
}

// NewStudentHandler constructs the handler. uploads may be nil when no image storage is configured.
func NewStudentHandler(students service.StudentService, verifier service.VerificationService, uploads service.ImageUploadService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		students: students,
		verifier: verifier,
		uploads:  uploads,
		logger:   logger.With().Str("component", "student_handler").Logger(),
	}
}

// List returns students, optionally filtered by class.
func (h *StudentHandler) List(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	if pageSize <= 0 {
		pageSize = 50
	} else if pageSize > 200 {
		pageSize = 200
	}

	req := dto.StudentListRequest{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
		ClassID:  c.Query("class_id"),
		Sort:     c.Query("sort"),
	}

	result, err := h.students.List(requestContext(c), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list students")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load students")
	}

	return utils.OK(c, result.Items, "students retrieved", result.Pagination)
}

// Create adds a student. The first verification code is issued in the background.
func (h *StudentHandler) Create(c *fiber.Ctx) error {
	var payload dto.StudentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.students.Create(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return h.studentError(c, err, "failed to create student")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student created", student)
}

// Get returns one student.
func (h *StudentHandler) Get(c *fiber.Ctx) error {
	student, err := h.students.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return h.studentError(c, err, "failed to load student")
	}
	return utils.SendSuccess(c, "student retrieved", student)
}

// Update applies a partial update.
func (h *StudentHandler) Update(c *fiber.Ctx) error {
	var payload dto.StudentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.students.Update(requestContext(c), c.Params("id"), payload, activityActorFromContext(c))
	if err != nil {
		return h.studentError(c, err, "failed to update student")
	}
	return utils.SendSuccess(c, "student updated", student)
}

// Delete soft deletes a student, or removes it with its records when hard=true.
func (h *StudentHandler) Delete(c *fiber.Ctx) error {
	hard := strings.EqualFold(c.Query("hard"), "true")
	if err := h.students.Delete(requestContext(c), c.Params("id"), hard, activityActorFromContext(c)); err != nil {
		return h.studentError(c, err, "failed to delete student")
	}
	return utils.SendSuccess(c, "student deleted", fiber.Map{"id": c.Params("id"), "hard": hard})
}

// IssueCode issues or resends the verification code. Staff see the code in the response.
func (h *StudentHandler) IssueCode(c *fiber.Ctx) error {
	issuance, err := h.verifier.IssueOrResendCode(requestContext(c), c.Params("id"), activityActorFromContext(c))
	if err != nil {
		return sendIssuanceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "verification code sent", dto.CodeIssuanceResponse{
		StudentID: issuance.StudentID,
		Email:     issuance.Email,
		Code:      issuance.Code,
		IssuedAt:  issuance.IssuedAt,
	})
}

// UploadPhoto stores the image and points the student's photo at it.
func (h *StudentHandler) UploadPhoto(c *fiber.Ctx) error {
	if h.uploads == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, service.ErrUploadsDisabled.Error())
	}

	file, err := c.FormFile("image")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "image is required")
	}

	ctx := requestContext(c)
	if _, err := h.students.Get(ctx, c.Params("id")); err != nil {
		return h.studentError(c, err, "failed to load student")
	}

	asset, err := h.uploads.Upload(ctx, file)
	if err != nil {
		return sendUploadError(c, h.logger, err)
	}

	student, err := h.students.Update(ctx, c.Params("id"), dto.StudentUpdateRequest{PhotoURL: &asset.URL}, activityActorFromContext(c))
	if err != nil {
		return h.studentError(c, err, "failed to update student")
	}
	return utils.SendSuccess(c, "photo uploaded", student)
}

func (h *StudentHandler) studentError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err), errors.Is(err, service.ErrInvalidFormat):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid student data", fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "student not found")
	case errors.Is(err, service.ErrClassNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "class not found")
	case errors.Is(err, service.ErrEmailTaken):
		return utils.Fail(c, fiber.StatusConflict, "email already used by another student", fiber.Map{"kind": "email_taken"})
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}

func sendUploadError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrUploadMissing):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUploadTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrUploadsDisabled):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Msg("upload failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "upload failed")
	}
}
