package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/observability"
	"github.com/noah-isme/dictation-api/internal/service"
	"github.com/noah-isme/dictation-api/internal/ttsjob"
	"github.com/noah-isme/dictation-api/internal/utils"
)

const statusPingInterval = 30 * time.Second

// StatusFeed is the part of the job status registry the stream needs.
type StatusFeed interface {
	Subscribe() (<-chan ttsjob.Update, func())
}

// TTSStatusHandler serves synthesis progress by polling and over a websocket.
type TTSStatusHandler struct {
	service service.ProblemSetService
	feed    StatusFeed
	logger  zerolog.Logger
}

// NewTTSStatusHandler builds a status handler. feed may be nil to disable the stream.
func NewTTSStatusHandler(service service.ProblemSetService, feed StatusFeed, logger zerolog.Logger) *TTSStatusHandler {
	return &TTSStatusHandler{
		service: service,
		feed:    feed,
		logger:  logger.With().Str("component", "tts_status_handler").Logger(),
	}
}

// StatusMessage is one websocket frame. A removed entry has no status.
type StatusMessage struct {
	ProblemSetID uint                   `json:"problemSetId"`
	Removed      bool                   `json:"removed,omitempty"`
	Status       *dto.TTSStatusResponse `json:"status,omitempty"`
}

// Register binds status routes under the provided router group.
func (h *TTSStatusHandler) Register(router fiber.Router) {
	if h.feed != nil {
		router.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		router.Get("/ws", websocket.New(h.stream))
	}

	router.Get("", h.all)
	router.Get("/:problemSetId", h.one)
}

func (h *TTSStatusHandler) all(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "tts statuses", fiber.Map{"statuses": h.service.Statuses()})
}

// one answers with a null status when the job is unknown or already evicted.
func (h *TTSStatusHandler) one(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "problemSetId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, ok := h.service.Status(id)
	if !ok {
		return utils.SendSuccess(c, "no tts job tracked", fiber.Map{"status": nil})
	}

	return utils.SendSuccess(c, "tts status", fiber.Map{"status": status})
}

// stream sends a snapshot of every tracked job, then each update as it happens.
func (h *TTSStatusHandler) stream(conn *websocket.Conn) {
	updates, cancel := h.feed.Subscribe()
	defer cancel()

	gauge := observability.StatusStreamsActive()
	gauge.Inc()
	defer gauge.Dec()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for id, status := range h.service.Statuses() {
		status := status
		if err := conn.WriteJSON(StatusMessage{ProblemSetID: id, Status: &status}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(statusPingInterval)
	defer ticker.Stop()

	h.logger.Debug().Msg("tts status stream connected")
	for {
		select {
		case <-closed:
			h.logger.Debug().Msg("tts status stream disconnected")
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			message := StatusMessage{ProblemSetID: update.ProblemSetID, Removed: update.Removed}
			if !update.Removed {
				status := dto.NewTTSStatusResponse(update.Progress)
				message.Status = &status
			}
			if err := conn.WriteJSON(message); err != nil {
				h.logger.Debug().Err(err).Msg("tts status stream write failed")
				return
			}
		}
	}
}
