package handler

import (
	"errors"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/utils"
)

// AudioHandler serves synthesized sentence audio.
type AudioHandler struct {
	store  audio.Store
	logger zerolog.Logger
}

// NewAudioHandler builds an audio handler over the asset store.
func NewAudioHandler(store audio.Store, logger zerolog.Logger) *AudioHandler {
	return &AudioHandler{
		store:  store,
		logger: logger.With().Str("component", "audio_handler").Logger(),
	}
}

// Register attaches the audio route.
func (h *AudioHandler) Register(router fiber.Router) {
	router.Get("/:problemSetId/:sentenceNumber", h.get)
}

func (h *AudioHandler) get(c *fiber.Ctx) error {
	problemSetID, err := parseUintParam(c, "problemSetId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	number, err := strconv.Atoi(c.Params("sentenceNumber"))
	if err != nil || number <= 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid sentenceNumber")
	}

	data, err := h.store.Get(requestContext(c), audio.Key{ProblemSetID: problemSetID, Number: number})
	if err != nil {
		if errors.Is(err, audio.ErrAssetNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "audio not found, it may still be generating")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("problem_set_id", problemSetID).Int("sentence_number", number).Msg("failed to read audio asset")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	c.Set(fiber.HeaderContentType, mimetype.Detect(data).String())
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Send(data)
}
