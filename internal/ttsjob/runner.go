package ttsjob

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/observability"
	"github.com/noah-isme/dictation-api/pkg/tts"
)

// Sentence is the text snapshot a job synthesizes for one sequence number.
type Sentence struct {
	Number int
	Text   string
}

// Job synthesizes audio for some or all sentences of a problem set.
type Job struct {
	Ticket    Ticket
	Voice     tts.Voice
	Sentences []Sentence
}

// ProblemSetID returns the problem set the job belongs to.
func (j Job) ProblemSetID() uint {
	return j.Ticket.ProblemSetID
}

// JobRunner executes one job to completion or first failure.
type JobRunner interface {
	Run(ctx context.Context, job Job) error
}

// Runner synthesizes sentences one at a time and stores each clip before moving on.
type Runner struct {
	synth    tts.Synthesizer
	store    audio.Store
	registry *Registry
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewRunner wires a runner to its synthesizer, asset store and status registry.
func NewRunner(synth tts.Synthesizer, store audio.Store, registry *Registry, logger zerolog.Logger) *Runner {
	return &Runner{
		synth:    synth,
		store:    store,
		registry: registry,
		tracer:   otel.Tracer("github.com/noah-isme/dictation-api/internal/ttsjob"),
		logger:   logger.With().Str("component", "tts_runner").Logger(),
	}
}

// Run walks the sentences in ascending number order. The first failure marks the job
// as errored and stops it; clips written before the failure are kept. A panic is
// reported the same way.
func (r *Runner) Run(ctx context.Context, job Job) (err error) {
	sentences := make([]Sentence, len(job.Sentences))
	copy(sentences, job.Sentences)
	sort.SliceStable(sentences, func(i, j int) bool {
		return sentences[i].Number < sentences[j].Number
	})

	problemSetID := job.ProblemSetID()
	ctx, span := r.tracer.Start(ctx, "tts.job", trace.WithAttributes(
		attribute.Int64("problem_set.id", int64(problemSetID)),
		attribute.String("tts.voice", job.Voice.String()),
		attribute.Int("tts.sentences", len(sentences)),
	))
	defer span.End()

	log := r.logger.With().
		Uint("problem_set_id", problemSetID).
		Uint64("generation", job.Ticket.Generation).
		Str("voice", job.Voice.String()).
		Logger()
	log.Info().Int("total", len(sentences)).Msg("tts job started")

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, "tts job panicked")
			r.registry.MarkError(job.Ticket, err)
			observability.TTSJobs().WithLabelValues(string(StatusError)).Inc()
			log.Error().Err(err).Msg("tts job panicked")
		}
	}()

	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("tts job cancelled")
			return err
		}

		if err := r.synthesizeOne(ctx, job, sentence); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				log.Warn().Err(ctxErr).Int("sentence_number", sentence.Number).Msg("tts job cancelled")
				return ctxErr
			}

			span.RecordError(err)
			span.SetStatus(codes.Error, "sentence synthesis failed")
			r.registry.MarkError(job.Ticket, err)
			observability.TTSJobs().WithLabelValues(string(StatusError)).Inc()
			log.Error().Err(err).Int("sentence_number", sentence.Number).Msg("tts job failed")
			return err
		}

		r.registry.Advance(job.Ticket)
		observability.TTSSentences().Inc()
		log.Info().Int("sentence_number", sentence.Number).Msg("tts sentence stored")
	}

	// The entry completes on its last Advance; jobs sharing the ticket may still be queued.
	observability.TTSJobs().WithLabelValues(string(StatusComplete)).Inc()
	log.Info().Msg("tts job complete")

	return nil
}

func (r *Runner) synthesizeOne(ctx context.Context, job Job, sentence Sentence) error {
	data, err := r.synth.Synthesize(ctx, AnnouncementText(sentence.Number, sentence.Text), job.Voice)
	if err != nil {
		return fmt.Errorf("sentence %d: %w", sentence.Number, err)
	}

	// Cancelled while the provider call was in flight.
	if err := ctx.Err(); err != nil {
		return err
	}

	key := audio.Key{ProblemSetID: job.ProblemSetID(), Number: sentence.Number}
	if err := r.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store sentence %d: %w", sentence.Number, err)
	}

	return nil
}
