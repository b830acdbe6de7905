package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/dictation-api/internal/config"
	"github.com/noah-isme/dictation-api/internal/handler"
	"github.com/noah-isme/dictation-api/internal/middleware"
	"github.com/noah-isme/dictation-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ProblemSetHandler *handler.ProblemSetHandler
	TTSStatusHandler  *handler.TTSStatusHandler
	SessionHandler    *handler.SessionHandler
	SubmissionHandler *handler.SubmissionHandler
	AudioHandler      *handler.AudioHandler
	GenerateHandler   *handler.GenerateHandler
	DependencyChecks  map[string]handler.DependencyCheck
	// TeacherMiddleware overrides the JWT guard derived from cfg.JWTSecret.
	TeacherMiddleware []fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	v1.Get("/health", handler.HealthCheck(cfg, deps.DependencyChecks))

	teacher := deps.TeacherMiddleware
	if teacher == nil {
		teacher = middleware.TeacherOnly(cfg.JWTSecret)
	}

	api := app.Group("/api")

	if deps.ProblemSetHandler != nil {
		deps.ProblemSetHandler.Register(api.Group("/problem-sets", teacher...))
		deps.ProblemSetHandler.RegisterSentences(api.Group("/sentences", teacher...))
		api.Post("/save", handler.Chain(teacher, deps.ProblemSetHandler.Save)...)
	}

	if deps.TTSStatusHandler != nil {
		deps.TTSStatusHandler.Register(api.Group("/tts-status", teacher...))
	}

	if deps.GenerateHandler != nil {
		api.Post("/generate", handler.Chain(teacher, deps.GenerateHandler.Generate)...)
	}

	// Student routes stay open: students only hold a session link.
	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(api.Group("/sessions"), teacher...)
	}

	if deps.SubmissionHandler != nil {
		limit := middleware.RateLimit("submissions", cfg.SubmissionRate, time.Minute)
		deps.SubmissionHandler.Register(api.Group("/submissions"), limit, teacher...)
		deps.SubmissionHandler.RegisterMyResult(api.Group("/my-result"))
	}

	if deps.AudioHandler != nil {
		deps.AudioHandler.Register(api.Group("/audio"))
	}
}
