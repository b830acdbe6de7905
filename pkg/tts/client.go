// Package tts talks to the text-to-speech provider: one call requests synthesis and
// returns an audio URL, a second call downloads the audio bytes.
package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEmptyText indicates nothing was given to synthesize.
	ErrEmptyText = errors.New("tts: text must not be empty")
	// ErrUnsupportedVoice indicates the voice is not one of the presets.
	ErrUnsupportedVoice = errors.New("tts: unsupported voice")
	// ErrSynthesisFailed indicates the provider did not return an audio reference.
	ErrSynthesisFailed = errors.New("tts: synthesis failed")
	// ErrDownloadFailed indicates the audio reference could not be fetched.
	ErrDownloadFailed = errors.New("tts: audio download failed")
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dictation",
		Subsystem: "tts",
		Name:      "request_duration_seconds",
		Help:      "Duration of TTS provider calls by phase.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"phase"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dictation",
		Subsystem: "tts",
		Name:      "request_failures_total",
		Help:      "Number of failed TTS provider calls by phase.",
	}, []string{"phase"})
)

// Synthesizer turns text into audio bytes with a preset voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// Config configures the provider client.
type Config struct {
	URL      string
	APIKey   string
	Language string
	Format   string
	// Timeout bounds each provider call. Zero keeps the transport default.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client implements Synthesizer against the preset-voice synthesis endpoint.
type Client struct {
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

type synthesisRequest struct {
	Text         string `json:"text"`
	Mode         string `json:"mode"`
	VoiceName    string `json:"voiceName"`
	Emotion      string `json:"emotion"`
	Lang         string `json:"lang"`
	OutputFormat string `json:"outputFormat"`
}

type synthesisResponse struct {
	AudioURL      string `json:"audioUrl"`
	AudioURLSnake string `json:"audio_url"`
	Error         string `json:"error"`
	Message       string `json:"message"`
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("tts url is required")
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}

	return &Client{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/dictation-api/pkg/tts"),
		logger: cfg.Logger.With().Str("component", "tts_client").Logger(),
	}, nil
}

// Synthesize requests audio for text and downloads it. There is no retry here.
func (c *Client) Synthesize(parent context.Context, text string, voice Voice) ([]byte, error) {
	ctx, span := c.tracer.Start(parent, "tts.synthesize", trace.WithAttributes(
		attribute.String("tts.voice", voice.String()),
		attribute.Int("tts.text_length", len([]rune(text))),
	))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		span.SetStatus(codes.Error, ErrEmptyText.Error())
		return nil, ErrEmptyText
	}
	if !voice.Valid() {
		span.SetStatus(codes.Error, ErrUnsupportedVoice.Error())
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVoice, voice)
	}

	audioURL, err := c.requestSynthesis(ctx, text, voice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return nil, err
	}

	data, err := c.download(ctx, audioURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("tts.audio_bytes", len(data)))
	c.logger.Debug().Str("voice", voice.String()).Int("bytes", len(data)).Msg("tts audio synthesized")

	return data, nil
}

func (c *Client) requestSynthesis(ctx context.Context, text string, voice Voice) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("synthesize").Observe(time.Since(start).Seconds())
	}()

	agent, err := c.newAgent(fiber.MethodPost, c.cfg.URL)
	if err != nil {
		requestFailures.WithLabelValues("synthesize").Inc()
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	agent.Set("X-API-Key", c.cfg.APIKey)
	agent.JSON(synthesisRequest{
		Text:         text,
		Mode:         "preset",
		VoiceName:    voice.String(),
		Emotion:      "neutral",
		Lang:         c.cfg.Language,
		OutputFormat: c.cfg.Format,
	})

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		requestFailures.WithLabelValues("synthesize").Inc()
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, errors.Join(errs...))
	}

	var payload synthesisResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn().Err(err).Int("status", status).Msg("tts response is not json")
	}

	audioURL := strings.TrimSpace(payload.AudioURL)
	if audioURL == "" {
		audioURL = strings.TrimSpace(payload.AudioURLSnake)
	}

	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices || audioURL == "" {
		requestFailures.WithLabelValues("synthesize").Inc()
		reason := firstNonEmpty(payload.Error, payload.Message, "audio url missing")
		c.logger.Error().Int("status", status).Str("reason", reason).Msg("tts provider rejected request")
		return "", fmt.Errorf("%w: status %d: %s", ErrSynthesisFailed, status, reason)
	}

	return audioURL, nil
}

func (c *Client) download(ctx context.Context, audioURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
	}()

	agent, err := c.newAgent(fiber.MethodGet, audioURL)
	if err != nil {
		requestFailures.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		requestFailures.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, errors.Join(errs...))
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		requestFailures.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, status)
	}
	if len(body) == 0 {
		requestFailures.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("%w: empty body", ErrDownloadFailed)
	}

	return body, nil
}

// newAgent prepares an agent for url. Agent.Bytes releases it; on error it is released here.
func (c *Client) newAgent(method, url string) (*fiber.Agent, error) {
	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		c.logger.Warn().Err(err).Str("url", url).Msg("failed to parse tts url")
		return nil, fmt.Errorf("parse %q: %w", url, err)
	}
	if c.cfg.Timeout > 0 {
		agent.Timeout(c.cfg.Timeout)
	}
	return agent, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
