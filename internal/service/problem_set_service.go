package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/repository"
	"github.com/noah-isme/dictation-api/internal/ttsjob"
	"github.com/noah-isme/dictation-api/pkg/tts"
)

var (
	// ErrProblemSetNotFound indicates the requested problem set does not exist.
	ErrProblemSetNotFound = errors.New("problem set not found")
	// ErrSentenceNotFound indicates the requested sentence does not exist.
	ErrSentenceNotFound = errors.New("sentence not found")
	// ErrInvalidProblemSet indicates the content is empty once trimmed and sanitized.
	ErrInvalidProblemSet = errors.New("problem set content is empty")
)

// JobQueue accepts synthesis jobs without waiting for them to run. Cancel returns
// once nothing more will be written for the problem set.
type JobQueue interface {
	Enqueue(job ttsjob.Job) error
	Cancel(problemSetID uint)
}

// SessionCacheInvalidator drops cached session payloads that embed a problem set.
type SessionCacheInvalidator interface {
	InvalidateProblemSet(ctx context.Context, problemSetID uint)
}

// ProblemSetService orchestrates saving, editing and deleting problem sets and their audio.
type ProblemSetService interface {
	Create(ctx context.Context, payload dto.ProblemSetCreateRequest) (dto.ProblemSetCreatedResponse, error)
	List(ctx context.Context) ([]dto.ProblemSetSummaryResponse, error)
	Get(ctx context.Context, id uint) (dto.ProblemSetDetailResponse, error)
	UpdateTitle(ctx context.Context, id uint, payload dto.ProblemSetTitleRequest) error
	UpdateSentence(ctx context.Context, sentenceID uint, payload dto.SentenceUpdateRequest) (dto.SentenceResponse, error)
	Delete(ctx context.Context, id uint) error
	Statuses() map[uint]dto.TTSStatusResponse
	Status(id uint) (dto.TTSStatusResponse, bool)
}

type problemSetService struct {
	repo      repository.ProblemSetRepository
	store     audio.Store
	registry  *ttsjob.Registry
	queue     JobQueue
	sessions  SessionCacheInvalidator
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	pickVoice func() tts.Voice
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewProblemSetService builds the problem set lifecycle service. sessions may be nil.
func NewProblemSetService(repo repository.ProblemSetRepository, store audio.Store, registry *ttsjob.Registry, queue JobQueue, sessions SessionCacheInvalidator, validate *validator.Validate, logger zerolog.Logger) ProblemSetService {
	return &problemSetService{
		repo:      repo,
		store:     store,
		registry:  registry,
		queue:     queue,
		sessions:  sessions,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		pickVoice: tts.RandomVoice,
		tracer:    otel.Tracer("github.com/noah-isme/dictation-api/internal/service/problem_set"),
		logger:    logger.With().Str("component", "problem_set_service").Logger(),
	}
}

func (s *problemSetService) Create(ctx context.Context, payload dto.ProblemSetCreateRequest) (dto.ProblemSetCreatedResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProblemSetCreatedResponse{}, err
	}

	title := s.cleanTitle(payload.Title)
	if title == "" {
		return dto.ProblemSetCreatedResponse{}, fmt.Errorf("%w: title", ErrInvalidProblemSet)
	}

	sentences := make([]models.Sentence, 0, len(payload.Sentences))
	for i, text := range payload.Sentences {
		text = strings.TrimSpace(text)
		if text == "" {
			return dto.ProblemSetCreatedResponse{}, fmt.Errorf("%w: sentence %d", ErrInvalidProblemSet, i+1)
		}
		sentences = append(sentences, models.Sentence{Number: i + 1, Text: text})
	}

	voice := s.pickVoice()
	ctx, span := s.tracer.Start(ctx, "problem_set.create", trace.WithAttributes(
		attribute.Int("problem_set.sentences", len(sentences)),
		attribute.String("tts.voice", voice.String()),
	))
	defer span.End()

	set := models.ProblemSet{
		Title:     title,
		VoiceName: voice.String(),
		Sentences: sentences,
	}
	if err := s.repo.Create(ctx, &set); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create_failed")
		return dto.ProblemSetCreatedResponse{}, err
	}

	span.SetAttributes(attribute.Int64("problem_set.id", int64(set.ID)))
	s.dispatch(set.ID, voice, set.Sentences)

	s.logger.Info().
		Uint("problem_set_id", set.ID).
		Int("sentences", len(set.Sentences)).
		Str("voice", voice.String()).
		Msg("problem set created")

	return dto.ProblemSetCreatedResponse{
		ID:        set.ID,
		VoiceName: set.VoiceName,
		Total:     len(set.Sentences),
	}, nil
}

func (s *problemSetService) List(ctx context.Context) ([]dto.ProblemSetSummaryResponse, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ProblemSetSummaryResponse, 0, len(rows))
	for _, row := range rows {
		hasAudio, err := s.store.Exists(ctx, audio.Key{ProblemSetID: row.ID, Number: 1})
		if err != nil {
			s.logger.Warn().Err(err).Uint("problem_set_id", row.ID).Msg("failed to check audio asset")
		}

		out = append(out, dto.ProblemSetSummaryResponse{
			ID:            row.ID,
			Title:         row.Title,
			CreatedAt:     row.CreatedAt,
			SentenceCount: row.SentenceCount,
			HasAudio:      hasAudio,
		})
	}

	return out, nil
}

func (s *problemSetService) Get(ctx context.Context, id uint) (dto.ProblemSetDetailResponse, error) {
	set, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.ProblemSetDetailResponse{}, translateNotFound(err, ErrProblemSetNotFound)
	}

	return dto.NewProblemSetDetailResponse(set), nil
}

func (s *problemSetService) UpdateTitle(ctx context.Context, id uint, payload dto.ProblemSetTitleRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	title := s.cleanTitle(payload.Title)
	if title == "" {
		return fmt.Errorf("%w: title", ErrInvalidProblemSet)
	}

	if err := s.repo.UpdateTitle(ctx, id, title); err != nil {
		return translateNotFound(err, ErrProblemSetNotFound)
	}

	s.invalidateSessions(ctx, id)
	s.logger.Info().Uint("problem_set_id", id).Msg("problem set renamed")

	return nil
}

// UpdateSentence stores the new text and resynthesizes only that sentence's audio.
func (s *problemSetService) UpdateSentence(ctx context.Context, sentenceID uint, payload dto.SentenceUpdateRequest) (dto.SentenceResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SentenceResponse{}, err
	}

	text := strings.TrimSpace(payload.SentenceText)
	if text == "" {
		return dto.SentenceResponse{}, fmt.Errorf("%w: sentence", ErrInvalidProblemSet)
	}

	current, err := s.repo.GetSentence(ctx, sentenceID)
	if err != nil {
		return dto.SentenceResponse{}, translateNotFound(err, ErrSentenceNotFound)
	}

	set, err := s.repo.GetByID(ctx, current.ProblemSetID)
	if err != nil {
		return dto.SentenceResponse{}, translateNotFound(err, ErrProblemSetNotFound)
	}

	voice, err := tts.ParseVoice(set.VoiceName)
	if err != nil {
		return dto.SentenceResponse{}, fmt.Errorf("problem set %d: %w", set.ID, err)
	}

	updated, err := s.repo.UpdateSentenceText(ctx, sentenceID, text)
	if err != nil {
		return dto.SentenceResponse{}, translateNotFound(err, ErrSentenceNotFound)
	}

	s.invalidateSessions(ctx, updated.ProblemSetID)
	s.dispatch(updated.ProblemSetID, voice, []models.Sentence{updated})

	s.logger.Info().
		Uint("problem_set_id", updated.ProblemSetID).
		Int("sentence_number", updated.Number).
		Msg("sentence updated, audio regeneration queued")

	return dto.SentenceResponse{
		ID:             updated.ID,
		SentenceNumber: updated.Number,
		SentenceText:   updated.Text,
	}, nil
}

// Delete removes the rows in one transaction and then the audio directory. A failed
// audio removal is logged only; the rows are already gone.
func (s *problemSetService) Delete(ctx context.Context, id uint) error {
	ctx, span := s.tracer.Start(ctx, "problem_set.delete", trace.WithAttributes(
		attribute.Int64("problem_set.id", int64(id)),
	))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return translateNotFound(err, ErrProblemSetNotFound)
	}

	s.queue.Cancel(id)
	s.registry.Forget(id)
	s.invalidateSessions(ctx, id)

	if err := s.store.DeleteProblemSet(ctx, id); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("problem_set_id", id).Msg("problem set deleted but audio cleanup failed")
		return nil
	}

	s.logger.Info().Uint("problem_set_id", id).Msg("problem set deleted")
	return nil
}

func (s *problemSetService) Statuses() map[uint]dto.TTSStatusResponse {
	entries := s.registry.All()
	out := make(map[uint]dto.TTSStatusResponse, len(entries))
	for id, progress := range entries {
		out[id] = dto.NewTTSStatusResponse(progress)
	}
	return out
}

func (s *problemSetService) Status(id uint) (dto.TTSStatusResponse, bool) {
	progress, ok := s.registry.Get(id)
	if !ok {
		return dto.TTSStatusResponse{}, false
	}
	return dto.NewTTSStatusResponse(progress), true
}

// dispatch opens a registry generation, or joins the one still generating, and queues the job. Queue failures are
// reported through the registry, never to the caller.
func (s *problemSetService) dispatch(problemSetID uint, voice tts.Voice, sentences []models.Sentence) {
	jobSentences := make([]ttsjob.Sentence, 0, len(sentences))
	for _, sentence := range sentences {
		jobSentences = append(jobSentences, ttsjob.Sentence{Number: sentence.Number, Text: sentence.Text})
	}

	ticket := s.registry.Begin(problemSetID, len(jobSentences))
	job := ttsjob.Job{Ticket: ticket, Voice: voice, Sentences: jobSentences}
	if err := s.queue.Enqueue(job); err != nil {
		s.registry.MarkError(ticket, err)
		s.logger.Error().Err(err).Uint("problem_set_id", problemSetID).Msg("failed to queue tts job")
	}
}

func (s *problemSetService) invalidateSessions(ctx context.Context, problemSetID uint) {
	if s.sessions != nil {
		s.sessions.InvalidateProblemSet(ctx, problemSetID)
	}
}

func (s *problemSetService) cleanTitle(raw string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(strings.TrimSpace(raw)))
}

func translateNotFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
