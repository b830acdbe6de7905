package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/ttsjob"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func newMemoryStore(t *testing.T) *audio.FileStore {
	t.Helper()
	store, err := audio.NewFileStoreOn(afero.NewMemMapFs(), "/audio", "mp3")
	require.NoError(t, err)
	return store
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []ttsjob.Job
	cancelled []uint
	err       error
}

func (q *fakeQueue) Enqueue(job ttsjob.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Cancel(problemSetID uint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, problemSetID)
}

func (q *fakeQueue) Jobs() []ttsjob.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ttsjob.Job(nil), q.jobs...)
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recordingInvalidator) InvalidateProblemSet(_ context.Context, problemSetID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, problemSetID)
}

func newValidator() *validator.Validate {
	return validator.New()
}
