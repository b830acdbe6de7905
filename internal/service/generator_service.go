package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/pkg/ai"
)

// ErrGeneratorUnavailable indicates no language model is configured.
var ErrGeneratorUnavailable = errors.New("sentence generator is not configured")

const defaultGenerateGrade = 3

// GeneratorService drafts candidate sentences for the teacher to edit before saving.
type GeneratorService interface {
	Generate(ctx context.Context, payload dto.GenerateRequest) (dto.GenerateResponse, error)
}

type generatorService struct {
	generator ai.SentenceGenerator
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGeneratorService wraps a sentence generator. generator may be nil.
func NewGeneratorService(generator ai.SentenceGenerator, validate *validator.Validate, logger zerolog.Logger) GeneratorService {
	return &generatorService{
		generator: generator,
		validator: validate,
		logger:    logger.With().Str("component", "generator_service").Logger(),
	}
}

func (s *generatorService) Generate(ctx context.Context, payload dto.GenerateRequest) (dto.GenerateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GenerateResponse{}, err
	}

	if s.generator == nil {
		return dto.GenerateResponse{}, ErrGeneratorUnavailable
	}

	grade := payload.Grade
	if grade == 0 {
		grade = defaultGenerateGrade
	}

	sentences, err := s.generator.GenerateSentences(ctx, ai.SentenceRequest{
		Keywords:           ai.SplitKeywords(payload.Inputs),
		AdditionalRequests: payload.AdditionalRequests,
		Count:              payload.Count,
		Grade:              grade,
	})
	if err != nil {
		s.logger.Error().Err(err).Int("count", payload.Count).Int("grade", grade).Msg("sentence generation failed")
		return dto.GenerateResponse{}, err
	}

	return dto.GenerateResponse{Sentences: sentences}, nil
}
