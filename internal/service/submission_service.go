package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/observability"
	"github.com/noah-isme/dictation-api/internal/repository"
)

var (
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrResultNotFound indicates the student has no graded submission yet.
	ErrResultNotFound = errors.New("result not found")
)

// GradeResult is the outcome of grading one attempt against an answer key.
type GradeResult struct {
	Score   int
	Total   int
	Answers []models.Answer
}

// Grade compares answers with the key sentence by sentence. Only surrounding whitespace
// is ignored; spacing, punctuation and case inside the sentence must match exactly.
// Missing answers count as incorrect. The stored answer is the raw text as submitted.
func Grade(key []models.Sentence, answers map[int]string) GradeResult {
	ordered := make([]models.Sentence, len(key))
	copy(ordered, key)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	result := GradeResult{Total: len(ordered), Answers: make([]models.Answer, 0, len(ordered))}
	for _, sentence := range ordered {
		raw := answers[sentence.Number]
		correct := strings.TrimSpace(raw) == strings.TrimSpace(sentence.Text)
		if correct {
			result.Score++
		}

		result.Answers = append(result.Answers, models.Answer{
			SentenceNumber: sentence.Number,
			StudentAnswer:  raw,
			CorrectAnswer:  sentence.Text,
			IsCorrect:      correct,
		})
	}

	return result
}

// SubmissionService grades attempts and serves stored results.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResultResponse, error)
	ListByProblemSet(ctx context.Context, problemSetID uint) ([]dto.SubmissionSummaryResponse, error)
	Detail(ctx context.Context, id uint) (dto.SubmissionDetailResponse, error)
	MyResult(ctx context.Context, query dto.MyResultQuery) (dto.SubmissionDetailResponse, error)
}

type submissionService struct {
	repo      repository.SubmissionRepository
	sessions  repository.SessionRepository
	validator *validator.Validate
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewSubmissionService constructs a submission service.
func NewSubmissionService(repo repository.SubmissionRepository, sessions repository.SessionRepository, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		repo:      repo,
		sessions:  sessions,
		validator: validate,
		tracer:    otel.Tracer("github.com/noah-isme/dictation-api/internal/service/submission"),
		logger:    logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResultResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "submission.grade", trace.WithAttributes(
		attribute.String("session.id", payload.SessionID),
	))
	defer span.End()

	session, err := s.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return dto.SubmissionResultResponse{}, translateNotFound(err, ErrSessionNotFound)
	}

	answers, raw := normalizeAnswers(payload.Answers)
	result := Grade(session.ProblemSet.Sentences, answers)

	submission := models.Submission{
		SessionID:   session.ID,
		Grade:       payload.Grade,
		ClassNum:    payload.ClassNum,
		StudentNum:  payload.StudentNum,
		StudentName: strings.TrimSpace(payload.StudentName),
		Score:       result.Score,
		Total:       result.Total,
		RawAnswers:  raw,
		Answers:     result.Answers,
	}
	if err := s.repo.Create(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmissionResultResponse{}, err
	}

	observability.SubmissionsGraded().Inc()
	if result.Total > 0 {
		observability.SubmissionScoreRatio().Observe(float64(result.Score) / float64(result.Total))
	}
	span.SetAttributes(attribute.Int("submission.score", result.Score), attribute.Int("submission.total", result.Total))

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("session_id", session.ID).
		Int("score", result.Score).
		Int("total", result.Total).
		Msg("submission graded")

	return dto.SubmissionResultResponse{
		SubmissionID: submission.ID,
		Score:        submission.Score,
		Total:        submission.Total,
		Answers:      dto.NewAnswerResponses(submission.Answers),
	}, nil
}

func (s *submissionService) ListByProblemSet(ctx context.Context, problemSetID uint) ([]dto.SubmissionSummaryResponse, error) {
	items, err := s.repo.ListByProblemSet(ctx, problemSetID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionSummarySlice(items), nil
}

func (s *submissionService) Detail(ctx context.Context, id uint) (dto.SubmissionDetailResponse, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.SubmissionDetailResponse{}, translateNotFound(err, ErrSubmissionNotFound)
	}

	return dto.NewSubmissionDetailResponse(submission), nil
}

// MyResult prefers the newest submission in the given session and falls back to the
// newest submission of the same student in any session.
func (s *submissionService) MyResult(ctx context.Context, query dto.MyResultQuery) (dto.SubmissionDetailResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.SubmissionDetailResponse{}, err
	}

	identity := repository.StudentIdentity{Grade: query.Grade, ClassNum: query.ClassNum, StudentNum: query.StudentNum}

	if query.SessionID != "" {
		submission, err := s.repo.LatestForStudent(ctx, identity, query.SessionID)
		if err == nil {
			return dto.NewSubmissionDetailResponse(submission), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionDetailResponse{}, err
		}
	}

	submission, err := s.repo.LatestForStudent(ctx, identity, "")
	if err != nil {
		return dto.SubmissionDetailResponse{}, translateNotFound(err, ErrResultNotFound)
	}

	return dto.NewSubmissionDetailResponse(submission), nil
}

// normalizeAnswers parses sentence-number keys. Keys that are not positive integers are
// dropped from grading but kept in the raw copy.
func normalizeAnswers(input map[string]string) (map[int]string, datatypes.JSONMap) {
	answers := make(map[int]string, len(input))
	raw := make(datatypes.JSONMap, len(input))
	for key, value := range input {
		raw[key] = value

		number, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || number <= 0 {
			continue
		}
		answers[number] = value
	}
	return answers, raw
}
