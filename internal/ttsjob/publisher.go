package ttsjob

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event is the broker payload for one registry update.
type Event struct {
	Source string    `json:"source"`
	Update Update    `json:"update"`
	SentAt time.Time `json:"sent_at"`
}

// BrokerPublisher fans registry updates out to Redis pub/sub and NATS so other
// processes can follow synthesis progress. Either broker may be absent.
type BrokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewBrokerPublisher derives "<base>:tts" for Redis and "<base>.tts" for NATS.
func NewBrokerPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *BrokerPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":tts"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".tts"
	}

	return &BrokerPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "tts_publisher").Logger(),
	}
}

// Enabled reports whether at least one broker is configured.
func (p *BrokerPublisher) Enabled() bool {
	return (p.redis != nil && p.redisChannel != "") || (p.nats != nil && p.natsSubject != "")
}

// RedisChannel returns the Redis channel events are published on.
func (p *BrokerPublisher) RedisChannel() string {
	return p.redisChannel
}

// NATSSubject returns the NATS subject events are published on.
func (p *BrokerPublisher) NATSSubject() string {
	return p.natsSubject
}

// Publish sends one update to every configured broker.
func (p *BrokerPublisher) Publish(ctx context.Context, update Update) error {
	payload, err := json.Marshal(Event{
		Source: p.nodeID,
		Update: update,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// Run forwards registry updates to the brokers until ctx is cancelled.
func (p *BrokerPublisher) Run(ctx context.Context, registry *Registry) {
	if !p.Enabled() {
		return
	}

	updates, cancel := registry.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if err := p.Publish(ctx, update); err != nil {
					p.logger.Warn().Err(err).Uint("problem_set_id", update.ProblemSetID).Msg("failed to publish tts update")
				}
			}
		}
	}()
}
