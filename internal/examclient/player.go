package examclient

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultSpeed slows narration slightly for young students.
const DefaultSpeed = 0.8

// AudioFetcher downloads sentence audio.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, problemSetID uint, sentenceNumber int) ([]byte, error)
}

// PlayerConfig describes the external program used for playback. The
// placeholders {file} and {speed} in Args are replaced on every call.
type PlayerConfig struct {
	Command string
	Args    []string
	Speed   float64
	// Fs holds the temporary audio files handed to Command. It must be backed by
	// the real filesystem when Command is an external program.
	Fs     afero.Fs
	TmpDir string
	Logger zerolog.Logger
}

// DefaultPlayerConfig plays with ffplay without opening a window.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Command: "ffplay",
		Args:    []string{"-nodisp", "-autoexit", "-loglevel", "error", "-af", "atempo={speed}", "{file}"},
		Speed:   DefaultSpeed,
		Fs:      afero.NewOsFs(),
	}
}

// Player implements exam.Player by downloading audio once per sentence and
// handing it to an external program.
type Player struct {
	cfg     PlayerConfig
	fetcher AudioFetcher
	logger  zerolog.Logger

	mu    sync.Mutex
	files map[string]string
}

// NewPlayer builds a player. Call Close to remove downloaded files.
func NewPlayer(fetcher AudioFetcher, cfg PlayerConfig) (*Player, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("audio fetcher is required")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("player command is required")
	}
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultSpeed
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	return &Player{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  cfg.Logger.With().Str("component", "audio_player").Logger(),
		files:   make(map[string]string),
	}, nil
}

// Play blocks until the external program exits or ctx is cancelled.
func (p *Player) Play(ctx context.Context, problemSetID uint, sentenceNumber int) error {
	path, err := p.localFile(ctx, problemSetID, sentenceNumber)
	if err != nil {
		return err
	}

	speed := strconv.FormatFloat(p.cfg.Speed, 'f', -1, 64)
	args := make([]string, 0, len(p.cfg.Args))
	for _, arg := range p.cfg.Args {
		arg = strings.ReplaceAll(arg, "{file}", path)
		arg = strings.ReplaceAll(arg, "{speed}", speed)
		args = append(args, arg)
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug().Str("output", strings.TrimSpace(string(output))).Msg("player exited with error")
		return fmt.Errorf("play sentence %d: %w", sentenceNumber, err)
	}
	return nil
}

func (p *Player) localFile(ctx context.Context, problemSetID uint, sentenceNumber int) (string, error) {
	key := fmt.Sprintf("%d/%d", problemSetID, sentenceNumber)

	p.mu.Lock()
	path, ok := p.files[key]
	p.mu.Unlock()
	if ok {
		return path, nil
	}

	data, err := p.fetcher.FetchAudio(ctx, problemSetID, sentenceNumber)
	if err != nil {
		return "", fmt.Errorf("fetch sentence %d audio: %w", sentenceNumber, err)
	}

	file, err := afero.TempFile(p.cfg.Fs, p.cfg.TmpDir, fmt.Sprintf("dictation-%d-%d-*.audio", problemSetID, sentenceNumber))
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = p.cfg.Fs.Remove(file.Name())
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close audio file: %w", err)
	}

	p.mu.Lock()
	p.files[key] = file.Name()
	p.mu.Unlock()

	return file.Name(), nil
}

// Close removes downloaded audio files.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for key, path := range p.files {
		if err := p.cfg.Fs.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.files, key)
	}
	return firstErr
}
