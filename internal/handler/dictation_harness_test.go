package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/config"
	"github.com/noah-isme/dictation-api/internal/handler"
	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/repository"
	"github.com/noah-isme/dictation-api/internal/router"
	"github.com/noah-isme/dictation-api/internal/service"
	"github.com/noah-isme/dictation-api/internal/ttsjob"
)

type memoryQueue struct {
	mu   sync.Mutex
	jobs []ttsjob.Job
}

func (q *memoryQueue) Enqueue(job ttsjob.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memoryQueue) Cancel(uint) {}

type dictationApp struct {
	app      *fiber.App
	db       *gorm.DB
	store    *audio.FileStore
	registry *ttsjob.Registry
	queue    *memoryQueue
}

type appOptions struct {
	jwtSecret string
}

func newDictationApp(t *testing.T, opts appOptions) dictationApp {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:http_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := audio.NewFileStoreOn(afero.NewMemMapFs(), "/audio", "mp3")
	require.NoError(t, err)

	log := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	registry := ttsjob.NewRegistry(nil, 0, log)
	queue := &memoryQueue{}

	problemSetRepo := repository.NewProblemSetRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	sessionService := service.NewSessionService(sessionRepo, validate, nil, 0, log)
	problemSetService := service.NewProblemSetService(problemSetRepo, store, registry, queue, sessionService, validate, log)
	submissionService := service.NewSubmissionService(submissionRepo, sessionRepo, validate, log)
	generatorService := service.NewGeneratorService(nil, validate, log)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", AppEnv: "test", JWTSecret: opts.jwtSecret, SubmissionRate: 1000}, router.Dependencies{
		ProblemSetHandler: handler.NewProblemSetHandler(problemSetService, log),
		TTSStatusHandler:  handler.NewTTSStatusHandler(problemSetService, registry, log),
		SessionHandler:    handler.NewSessionHandler(sessionService, log),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, log),
		AudioHandler:      handler.NewAudioHandler(store, log),
		GenerateHandler:   handler.NewGenerateHandler(generatorService, log),
	})

	return dictationApp{app: app, db: db, store: store, registry: registry, queue: queue}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func (d dictationApp) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decodeEnvelope(t *testing.T, raw []byte, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data), string(raw))
	}
	return env
}

func validateContract(t *testing.T, schemaFile string, raw []byte) {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", schemaFile))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))
}
