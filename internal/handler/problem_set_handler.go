package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/service"
	"github.com/noah-isme/dictation-api/internal/utils"
)

// ProblemSetHandler exposes the teacher side of problem set management.
type ProblemSetHandler struct {
	service service.ProblemSetService
	logger  zerolog.Logger
}

// NewProblemSetHandler builds a problem set handler.
func NewProblemSetHandler(service service.ProblemSetService, logger zerolog.Logger) *ProblemSetHandler {
	return &ProblemSetHandler{
		service: service,
		logger:  logger.With().Str("component", "problem_set_handler").Logger(),
	}
}

// Register attaches the problem set routes to the provided router group.
func (h *ProblemSetHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.detail)
	router.Patch("/:id", h.rename)
	router.Delete("/:id", h.delete)
}

// RegisterSentences attaches the sentence edit route.
func (h *ProblemSetHandler) RegisterSentences(router fiber.Router) {
	router.Patch("/:id", h.updateSentence)
}

// Save is the legacy create endpoint kept for older dashboards.
func (h *ProblemSetHandler) Save(c *fiber.Ctx) error {
	return h.create(c)
}

func (h *ProblemSetHandler) list(c *fiber.Ctx) error {
	items, err := h.service.List(requestContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, items, "problem sets retrieved", fiber.Map{"total": len(items)})
}

func (h *ProblemSetHandler) create(c *fiber.Ctx) error {
	var payload dto.ProblemSetCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "problem set saved, audio is being generated", created)
}

func (h *ProblemSetHandler) detail(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	set, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "problem set retrieved", set)
}

func (h *ProblemSetHandler) rename(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ProblemSetTitleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.UpdateTitle(requestContext(c), id, payload); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "title updated", nil)
}

func (h *ProblemSetHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "problem set, results and audio deleted", nil)
}

func (h *ProblemSetHandler) updateSentence(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SentenceUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	sentence, err := h.service.UpdateSentence(requestContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sentence updated, audio is being regenerated", sentence)
}

func (h *ProblemSetHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrProblemSetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "problem set not found")
	case errors.Is(err, service.ErrSentenceNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "sentence not found")
	case errors.Is(err, service.ErrInvalidProblemSet):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return sendValidationError(c, err)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("problem set request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
