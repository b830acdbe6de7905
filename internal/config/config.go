package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the dictation service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseDriver     string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	EventsChannel      string
	JWTSecret          string
	AudioDir           string
	TTSURL             string
	TTSAPIKey          string
	TTSLanguage        string
	TTSFormat          string
	TTSTimeout         time.Duration
	TTSWorkers         int
	TTSQueueSize       int
	TTSStatusRetention time.Duration
	SessionCacheTTL    time.Duration
	AIProvider         string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	SubmissionRate     int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DICTATION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Dictation API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "3010")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "dictation.db")
	v.SetDefault("events.channel", "dictation")
	v.SetDefault("audio.dir", "audio")
	v.SetDefault("tts.url", "https://agitvxptajouhvoatxio.supabase.co/functions/v1/dive-synthesize-v1")
	v.SetDefault("tts.language", "ko")
	v.SetDefault("tts.format", "mp3")
	v.SetDefault("tts.timeout", "0s")
	v.SetDefault("tts.workers", 2)
	v.SetDefault("tts.queue_size", 64)
	v.SetDefault("tts.status_retention", "5m")
	v.SetDefault("session.cache_ttl", "10m")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("submission.rate_limit", 30)

	ttsTimeout, err := parseDuration(v, "tts.timeout")
	if err != nil {
		return Config{}, err
	}

	retention, err := parseDuration(v, "tts.status_retention")
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := parseDuration(v, "session.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseDriver:     strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		EventsChannel:      v.GetString("events.channel"),
		JWTSecret:          v.GetString("jwt.secret"),
		AudioDir:           v.GetString("audio.dir"),
		TTSURL:             v.GetString("tts.url"),
		TTSAPIKey:          v.GetString("tts.api_key"),
		TTSLanguage:        v.GetString("tts.language"),
		TTSFormat:          v.GetString("tts.format"),
		TTSTimeout:         ttsTimeout,
		TTSWorkers:         v.GetInt("tts.workers"),
		TTSQueueSize:       v.GetInt("tts.queue_size"),
		TTSStatusRetention: retention,
		SessionCacheTTL:    cacheTTL,
		AIProvider:         strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:       v.GetString("openai.api_key"),
		OpenAIModel:        v.GetString("openai.model"),
		OpenAIBaseURL:      v.GetString("openai.base_url"),
		SubmissionRate:     v.GetInt("submission.rate_limit"),
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.TTSWorkers <= 0 {
		cfg.TTSWorkers = 2
	}

	if cfg.TTSQueueSize <= 0 {
		cfg.TTSQueueSize = 64
	}

	if cfg.SubmissionRate <= 0 {
		cfg.SubmissionRate = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}
