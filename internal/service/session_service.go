package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/repository"
)

// ErrSessionNotFound indicates the session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// sessionCacheEpochKey is bumped by every invalidation. A payload is only cached if
// the epoch did not move while it was loaded from the database.
const sessionCacheEpochKey = "dictation:session:epoch"

var errSessionCacheRaced = errors.New("session cache invalidated during load")

// SessionService creates shareable exam sessions and serves them to students.
type SessionService interface {
	Create(ctx context.Context, payload dto.SessionCreateRequest) (dto.SessionCreatedResponse, error)
	Get(ctx context.Context, id string) (dto.SessionResponse, error)
	InvalidateProblemSet(ctx context.Context, problemSetID uint)
}

type sessionService struct {
	repo      repository.SessionRepository
	validator *validator.Validate
	cache     *redis.Client
	cacheTTL  time.Duration
	newID     func() string
	now       func() time.Time
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewSessionService builds the session service. cache may be nil.
func NewSessionService(repo repository.SessionRepository, validate *validator.Validate, cache *redis.Client, cacheTTL time.Duration, logger zerolog.Logger) SessionService {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &sessionService{
		repo:      repo,
		validator: validate,
		cache:     cache,
		cacheTTL:  cacheTTL,
		newID:     uuid.NewString,
		now:       time.Now,
		tracer:    otel.Tracer("github.com/noah-isme/dictation-api/internal/service/session"),
		logger:    logger.With().Str("component", "session_service").Logger(),
	}
}

// Create reuses the newest session of the problem set when one exists. The requested
// read count only applies to a freshly created session.
func (s *sessionService) Create(ctx context.Context, payload dto.SessionCreateRequest) (dto.SessionCreatedResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionCreatedResponse{}, err
	}

	candidate := models.StudentSession{
		ID:           s.newID(),
		ProblemSetID: payload.ProblemSetID,
		ReadCount:    payload.ReadCount,
		CreatedAt:    s.now().UTC(),
	}

	session, reused, err := s.repo.FindOrCreate(ctx, &candidate)
	if err != nil {
		return dto.SessionCreatedResponse{}, translateNotFound(err, ErrProblemSetNotFound)
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Uint("problem_set_id", session.ProblemSetID).
		Bool("reused", reused).
		Msg("session resolved")

	return dto.SessionCreatedResponse{SessionID: session.ID, Reused: reused}, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "session.get", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	key := sessionCacheKey(id)
	epoch, cacheable := "", false
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var response dto.SessionResponse
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("failed to read session cache")
		}
		epoch, cacheable = s.cacheEpoch(ctx)
	}

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.SessionResponse{}, translateNotFound(err, ErrSessionNotFound)
	}

	response := dto.NewSessionResponse(session)
	if cacheable {
		s.cacheSession(ctx, response, epoch)
	}

	return response, nil
}

func (s *sessionService) cacheEpoch(ctx context.Context) (string, bool) {
	epoch, err := s.cache.Get(ctx, sessionCacheEpochKey).Result()
	switch {
	case err == nil:
		return epoch, true
	case errors.Is(err, redis.Nil):
		return "", true
	default:
		s.logger.Warn().Err(err).Msg("failed to read session cache epoch")
		return "", false
	}
}

// cacheSession stores the payload unless an invalidation ran since epoch was read.
func (s *sessionService) cacheSession(ctx context.Context, response dto.SessionResponse, epoch string) {
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}

	id := response.Session.ID
	setKey := problemSetSessionsKey(response.Session.ProblemSetID)
	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, sessionCacheEpochKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != epoch {
			return errSessionCacheRaced
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionCacheKey(id), payload, s.cacheTTL)
			pipe.SAdd(ctx, setKey, id)
			pipe.Expire(ctx, setKey, s.cacheTTL)
			return nil
		})
		return err
	}, sessionCacheEpochKey)

	switch {
	case err == nil:
	case errors.Is(err, errSessionCacheRaced), errors.Is(err, redis.TxFailedErr):
		s.logger.Debug().Str("session_id", id).Msg("session changed while loading, not cached")
	default:
		s.logger.Warn().Err(err).Str("session_id", id).Msg("failed to cache session")
	}
}

// InvalidateProblemSet drops every cached session payload embedding the problem set.
func (s *sessionService) InvalidateProblemSet(ctx context.Context, problemSetID uint) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Incr(ctx, sessionCacheEpochKey).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("problem_set_id", problemSetID).Msg("failed to bump session cache epoch")
	}

	setKey := problemSetSessionsKey(problemSetID)
	ids, err := s.cache.SMembers(ctx, setKey).Result()
	if err != nil {
		s.logger.Warn().Err(err).Uint("problem_set_id", problemSetID).Msg("failed to list cached sessions")
		return
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionCacheKey(id))
	}
	keys = append(keys, setKey)

	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("problem_set_id", problemSetID).Msg("failed to invalidate session cache")
	}
}

func sessionCacheKey(id string) string {
	return "dictation:session:" + id
}

func problemSetSessionsKey(problemSetID uint) string {
	return fmt.Sprintf("dictation:problem_set:%d:sessions", problemSetID)
}
