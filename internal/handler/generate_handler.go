package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/service"
	"github.com/noah-isme/dictation-api/internal/utils"
)

// GenerateHandler drafts sentences with the language model.
type GenerateHandler struct {
	service service.GeneratorService
	logger  zerolog.Logger
}

// NewGenerateHandler builds a generate handler.
func NewGenerateHandler(service service.GeneratorService, logger zerolog.Logger) *GenerateHandler {
	return &GenerateHandler{
		service: service,
		logger:  logger.With().Str("component", "generate_handler").Logger(),
	}
}

// Generate handles POST /api/generate.
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var payload dto.GenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Generate(requestContext(c), payload)
	switch {
	case err == nil:
		return utils.SendSuccess(c, "sentences generated", result)
	case errors.Is(err, service.ErrGeneratorUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "sentence generation is not configured")
	case isValidationError(err):
		return sendValidationError(c, err)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("sentence generation failed")
		return utils.SendError(c, fiber.StatusBadGateway, "sentence generation failed")
	}
}
