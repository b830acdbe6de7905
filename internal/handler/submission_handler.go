package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/service"
	"github.com/noah-isme/dictation-api/internal/utils"
)

// SubmissionHandler grades student attempts and serves stored results.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the submission routes. limit throttles submits and may be nil;
// guard protects the teacher listings.
func (h *SubmissionHandler) Register(router fiber.Router, limit fiber.Handler, guard ...fiber.Handler) {
	if limit != nil {
		router.Post("", limit, h.submit)
	} else {
		router.Post("", h.submit)
	}
	router.Get("/detail/:submissionId", Chain(guard, h.detail)...)
	router.Get("/:problemSetId", Chain(guard, h.list)...)
}

// RegisterMyResult attaches the student result lookup and its path alias.
func (h *SubmissionHandler) RegisterMyResult(router fiber.Router) {
	router.Get("", h.myResult)
	router.Get("/:sessionId", h.myResult)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Submit(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", result)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	problemSetID, err := parseUintParam(c, "problemSetId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := h.service.ListByProblemSet(requestContext(c), problemSetID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, items, "submissions retrieved", fiber.Map{"total": len(items)})
}

func (h *SubmissionHandler) detail(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "submissionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	detail, err := h.service.Detail(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", detail)
}

func (h *SubmissionHandler) myResult(c *fiber.Ctx) error {
	var query dto.MyResultQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "grade, classNum and studentNum are required")
	}
	if sessionID := strings.TrimSpace(c.Params("sessionId")); sessionID != "" {
		query.SessionID = sessionID
	}

	result, err := h.service.MyResult(requestContext(c), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "result retrieved", result)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrResultNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "no result found for this student")
	case isValidationError(err):
		return sendValidationError(c, err)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("submission request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
