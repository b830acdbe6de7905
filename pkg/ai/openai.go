package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dictation",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of sentence generation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dictation",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of sentence generation failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI sentence generator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements SentenceGenerator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/dictation-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_generator").Logger(),
	}, nil
}

// GenerateSentences asks the model for req.Count sentences in JSON mode.
func (g *OpenAIGenerator) GenerateSentences(parent context.Context, req SentenceRequest) ([]string, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate_sentences", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("sentences.count", req.Count),
		attribute.Int("sentences.grade", req.Grade),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generatorSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildSentencePrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	aiDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, g.fail(span, fmt.Errorf("openai generate: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	sentences, err := ParseSentences(content, req.Count)
	if err != nil {
		g.logger.Warn().Err(err).Str("content", content).Msg("unusable sentence generation response")
		return nil, g.fail(span, err)
	}

	span.SetAttributes(attribute.Int("sentences.returned", len(sentences)))
	return sentences, nil
}

func (g *OpenAIGenerator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
