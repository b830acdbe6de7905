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

// SessionHandler creates shareable exam sessions and serves them to students.
type SessionHandler struct {
	service service.SessionService
	logger  zerolog.Logger
}

// NewSessionHandler builds a session handler.
func NewSessionHandler(service service.SessionService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register attaches the session routes. guard runs before session creation only;
// fetching a session stays open to anyone holding the link.
func (h *SessionHandler) Register(router fiber.Router, guard ...fiber.Handler) {
	router.Post("", Chain(guard, h.create)...)
	router.Get("/:sessionId", h.get)
}

func (h *SessionHandler) create(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "session created"
	if created.Reused {
		message = "existing session reused"
	}
	return utils.SendSuccess(c, message, created)
}

func (h *SessionHandler) get(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("sessionId"))
	if id == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "sessionId required")
	}

	session, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session retrieved", session)
}

func (h *SessionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrProblemSetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "problem set not found")
	case isValidationError(err):
		return sendValidationError(c, err)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("session request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
