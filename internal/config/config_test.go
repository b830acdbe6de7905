package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "Dictation API", cfg.AppName)
	require.Equal(t, ":3010", cfg.HTTPAddress())
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, 5*time.Minute, cfg.TTSStatusRetention)
	require.Equal(t, 10*time.Minute, cfg.SessionCacheTTL)
	require.Equal(t, 2, cfg.TTSWorkers)
	require.Equal(t, "ko", cfg.TTSLanguage)
	require.Zero(t, cfg.TTSTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DICTATION_APP_PORT", ":9000")
	t.Setenv("DICTATION_DATABASE_DRIVER", "POSTGRES")
	t.Setenv("DICTATION_TTS_STATUS_RETENTION", "30s")
	t.Setenv("DICTATION_TTS_WORKERS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress())
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, 30*time.Second, cfg.TTSStatusRetention)
	require.Equal(t, 2, cfg.TTSWorkers)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DICTATION_SESSION_CACHE_TTL", "soon")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DICTATION_SESSION_CACHE_TTL", "1m")
	t.Setenv("DICTATION_DATABASE_DRIVER", "mysql")
	_, err = Load()
	require.Error(t, err)
}
