package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"k8s.io/utils/clock"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/config"
	"github.com/noah-isme/dictation-api/internal/database"
	"github.com/noah-isme/dictation-api/internal/handler"
	"github.com/noah-isme/dictation-api/internal/middleware"
	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/observability"
	"github.com/noah-isme/dictation-api/internal/repository"
	"github.com/noah-isme/dictation-api/internal/router"
	"github.com/noah-isme/dictation-api/internal/service"
	"github.com/noah-isme/dictation-api/internal/ttsjob"
	"github.com/noah-isme/dictation-api/pkg/ai"
	"github.com/noah-isme/dictation-api/pkg/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	observability.RegisterMetrics()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	store, err := audio.NewFileStore(cfg.AudioDir, cfg.TTSFormat)
	if err != nil {
		log.Fatalf("failed to prepare audio store: %v", err)
	}

	synth, err := tts.NewClient(tts.Config{
		URL:      cfg.TTSURL,
		APIKey:   cfg.TTSAPIKey,
		Language: cfg.TTSLanguage,
		Format:   cfg.TTSFormat,
		Timeout:  cfg.TTSTimeout,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to create tts client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := ttsjob.NewRegistry(clock.RealClock{}, cfg.TTSStatusRetention, logger)
	registry.Start(ctx)

	dispatcher := ttsjob.NewDispatcher(ttsjob.NewRunner(synth, store, registry, logger), cfg.TTSWorkers, cfg.TTSQueueSize, logger)
	dispatcher.Start(ctx)

	publisher := ttsjob.NewBrokerPublisher(redisClient, natsConn, cfg.EventsChannel, logger)
	publisher.Run(ctx, registry)

	validate := validator.New(validator.WithRequiredStructEnabled())

	problemSetRepo := repository.NewProblemSetRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	sessionService := service.NewSessionService(sessionRepo, validate, redisClient, cfg.SessionCacheTTL, logger)
	problemSetService := service.NewProblemSetService(problemSetRepo, store, registry, dispatcher, sessionService, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, sessionRepo, validate, logger)
	generatorService := service.NewGeneratorService(newSentenceGenerator(cfg, logger), validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:    &logger,
		AccessLog: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		ProblemSetHandler: handler.NewProblemSetHandler(problemSetService, logger),
		TTSStatusHandler:  handler.NewTTSStatusHandler(problemSetService, registry, logger),
		SessionHandler:    handler.NewSessionHandler(sessionService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		AudioHandler:      handler.NewAudioHandler(store, logger),
		GenerateHandler:   handler.NewGenerateHandler(generatorService, logger),
		DependencyChecks:  dependencyChecks(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, dispatcher, cancel)
}

func newSentenceGenerator(cfg config.Config, logger zerolog.Logger) ai.SentenceGenerator {
	if cfg.AIProvider != "openai" || cfg.OpenAIAPIKey == "" {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("sentence generation disabled")
		return nil
	}

	generator, err := ai.NewOpenAIGenerator(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("sentence generation disabled")
		return nil
	}

	return generator
}

func dependencyChecks(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.DependencyCheck {
	checks := map[string]handler.DependencyCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	if natsConn != nil {
		checks["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	return checks
}

func waitForShutdown(app *fiber.App, dispatcher *ttsjob.Dispatcher, cancel context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, timeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeout()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Stop()
	cancel()

	log.Println("server stopped")
}
