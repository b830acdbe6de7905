// Package exam runs one student's dictation attempt: it paces audio playback,
// captures answers and submits them for grading.
//
// All state lives in a single goroutine. Public methods, timer firings and
// playback completions are delivered to it as messages, so a countdown expiring
// at the same moment a student presses "next" can only advance once.
package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

var (
	// ErrInvalidState is returned when an action does not apply to the current state.
	ErrInvalidState = errors.New("action not allowed in current state")
	// ErrStaleAction is returned when an action names a sentence the engine already left.
	ErrStaleAction = errors.New("sentence already advanced")
	// ErrSubmitInFlight is returned when a submission is already running.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("exam engine closed")
	// ErrNoSentences is returned when the session has nothing to play.
	ErrNoSentences = errors.New("session has no sentences")
)

const (
	DefaultAdvanceAfter = 5 * time.Second
	DefaultRepeatPause  = 2 * time.Second
)

// Player plays the audio of one sentence once and returns when playback ends.
type Player interface {
	Play(ctx context.Context, problemSetID uint, sentenceNumber int) error
}

// Submitter sends a finished attempt to the grading service.
type Submitter interface {
	Submit(ctx context.Context, submission Submission) (Result, error)
}

// Student identifies who is taking the exam.
type Student struct {
	Grade      int
	ClassNum   int
	StudentNum int
	Name       string
}

// Submission is a finished attempt. Answers are keyed by sentence number.
type Submission struct {
	SessionID string
	Student   Student
	Answers   map[int]string
}

// Verdict is the graded outcome of one sentence.
type Verdict struct {
	SentenceNumber int
	StudentAnswer  string
	CorrectAnswer  string
	IsCorrect      bool
}

// Result is the grading outcome returned by the server.
type Result struct {
	SubmissionID uint
	Score        int
	Total        int
	Verdicts     []Verdict
}

// Config describes one attempt.
type Config struct {
	SessionID    string
	ProblemSetID uint
	// SentenceNumbers lists the sentences to play, in playing order.
	SentenceNumbers []int
	ReadCount       int
	Student         Student
	AdvanceAfter    time.Duration
	RepeatPause     time.Duration
	// Review adds a second phase after every sentence was heard once. Audio is
	// then only played on request and answers can be revised before submitting.
	Review bool
	// Observer receives every event from the engine goroutine. It must not call
	// back into the engine.
	Observer func(Event)
	Clock    clock.WithDelayedExecution
	Logger   zerolog.Logger
}

// Engine drives one attempt.
type Engine struct {
	cfg       Config
	player    Player
	submitter Submitter
	clock     clock.WithDelayedExecution
	logger    zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inbox    chan func()
	quit     chan struct{}
	stopped  chan struct{}
	finished chan struct{}
	once     sync.Once

	// owned by the engine goroutine
	state          State
	index          int
	answers        map[int]string
	captured       []bool
	playbackFailed bool
	step           uint64
	stopPlayback   context.CancelFunc
	timer          clock.Timer
	result         *Result
	lastErr        error
}

// New validates cfg and starts the engine goroutine. Call Start to begin playback.
func New(cfg Config, player Player, submitter Submitter) (*Engine, error) {
	if len(cfg.SentenceNumbers) == 0 {
		return nil, ErrNoSentences
	}
	if player == nil || submitter == nil {
		return nil, fmt.Errorf("exam engine requires a player and a submitter")
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 1
	}
	if cfg.AdvanceAfter <= 0 {
		cfg.AdvanceAfter = DefaultAdvanceAfter
	}
	if cfg.RepeatPause < 0 {
		cfg.RepeatPause = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		player:    player,
		submitter: submitter,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With().Str("component", "exam_engine").Str("session_id", cfg.SessionID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func()),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		finished:  make(chan struct{}),
		state:     StateIdle,
		answers:   make(map[int]string, len(cfg.SentenceNumbers)),
		captured:  make([]bool, len(cfg.SentenceNumbers)),
	}

	go e.loop()
	return e, nil
}

func (e *Engine) loop() {
	defer close(e.stopped)
	for {
		select {
		case fn := <-e.inbox:
			fn()
		case <-e.quit:
			e.endStep()
			e.cancel()
			return
		}
	}
}

// call runs fn on the engine goroutine and waits for its result.
func (e *Engine) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.inbox <- func() { reply <- fn() }:
	case <-e.stopped:
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-e.stopped:
		return ErrClosed
	}
}

// post delivers an internal event without waiting.
func (e *Engine) post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.stopped:
	}
}

// Start plays the first sentence.
func (e *Engine) Start() error {
	return e.call(func() error {
		if e.state != StateIdle {
			return ErrInvalidState
		}
		e.play(0)
		return nil
	})
}

// Input replaces the text typed for the current sentence.
func (e *Engine) Input(text string) error {
	return e.call(func() error {
		switch e.state {
		case StatePlaying, StateAwaiting, StateReview:
			e.answers[e.index] = text
			return nil
		default:
			return ErrInvalidState
		}
	})
}

// Advance captures the answer for sentence index and moves on. index must be the
// sentence currently shown; an action aimed at an earlier sentence is rejected
// with ErrStaleAction so that it cannot advance the next one.
func (e *Engine) Advance(index int) error {
	return e.call(func() error {
		if e.state != StatePlaying && e.state != StateAwaiting {
			return ErrInvalidState
		}
		if index != e.index {
			return ErrStaleAction
		}
		e.captureAndAdvance("manual")
		return nil
	})
}

// Commit stores text as the answer for sentence index and advances in one step.
func (e *Engine) Commit(index int, text string) error {
	return e.call(func() error {
		if e.state != StatePlaying && e.state != StateAwaiting {
			return ErrInvalidState
		}
		if index != e.index {
			return ErrStaleAction
		}
		e.answers[index] = text
		e.captureAndAdvance("manual")
		return nil
	})
}

// Replay plays the current sentence again. During review it plays once.
func (e *Engine) Replay() error {
	return e.call(func() error {
		switch e.state {
		case StateAwaiting:
			e.play(e.index)
			return nil
		case StateReview:
			e.replayInReview()
			return nil
		default:
			return ErrInvalidState
		}
	})
}

// GoTo selects another sentence during review. Its previous answer is kept.
func (e *Engine) GoTo(index int) error {
	return e.call(func() error {
		if e.state != StateReview {
			return ErrInvalidState
		}
		if index < 0 || index >= len(e.cfg.SentenceNumbers) {
			return fmt.Errorf("sentence index %d out of range", index)
		}
		e.endStep()
		e.index = index
		e.emit(Event{Kind: EventSelected, Index: index, Text: e.answers[index]})
		return nil
	})
}

// Submit sends the attempt from review, or retries after a failed submission.
func (e *Engine) Submit() error {
	return e.call(func() error {
		switch e.state {
		case StateReview, StateSubmitFailed:
			e.submit()
			return nil
		case StateSubmitting:
			return ErrSubmitInFlight
		default:
			return ErrInvalidState
		}
	})
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	if err := e.call(func() error {
		snap = e.snapshot()
		return nil
	}); err != nil {
		return Snapshot{State: StateClosed}
	}
	return snap
}

// Wait blocks until the attempt is graded or ctx ends.
func (e *Engine) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.finished:
		snap := e.Snapshot()
		if snap.Result == nil {
			return Result{}, ErrClosed
		}
		return *snap.Result, nil
	case <-e.stopped:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops playback and timers and ends the engine goroutine.
func (e *Engine) Close() {
	e.once.Do(func() { close(e.quit) })
	<-e.stopped
}

func (e *Engine) snapshot() Snapshot {
	answers := make(map[int]string, len(e.answers))
	for index, text := range e.answers {
		answers[index] = text
	}

	snap := Snapshot{
		State:          e.state,
		Index:          e.index,
		Total:          len(e.cfg.SentenceNumbers),
		Answers:        answers,
		PlaybackFailed: e.playbackFailed,
		Err:            e.lastErr,
	}
	if e.result != nil {
		result := *e.result
		snap.Result = &result
	}
	return snap
}

// endStep invalidates the pending timer and playback of the current step.
func (e *Engine) endStep() {
	e.step++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.stopPlayback != nil {
		e.stopPlayback()
		e.stopPlayback = nil
	}
}

func (e *Engine) play(index int) {
	e.endStep()
	e.state = StatePlaying
	e.index = index
	e.playbackFailed = false
	e.emit(Event{Kind: EventPlaying, Index: index, Text: e.answers[index]})
	e.startPlayback(index, e.cfg.ReadCount)
}

func (e *Engine) replayInReview() {
	e.endStep()
	e.emit(Event{Kind: EventPlaying, Index: e.index, Text: e.answers[e.index]})
	e.startPlayback(e.index, 1)
}

func (e *Engine) startPlayback(index, repeats int) {
	step := e.step
	ctx, cancel := context.WithCancel(e.ctx)
	e.stopPlayback = cancel
	number := e.cfg.SentenceNumbers[index]

	go func() {
		err := e.playRepeated(ctx, number, repeats)
		e.post(func() { e.playbackDone(step, index, err) })
	}()
}

func (e *Engine) playRepeated(ctx context.Context, number, repeats int) error {
	for i := 0; i < repeats; i++ {
		if i > 0 && e.cfg.RepeatPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.clock.After(e.cfg.RepeatPause):
			}
		}
		if err := e.player.Play(ctx, e.cfg.ProblemSetID, number); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) playbackDone(step uint64, index int, err error) {
	if step != e.step {
		return
	}
	e.stopPlayback = nil

	if err != nil {
		e.logger.Warn().Err(err).Int("sentence_number", e.cfg.SentenceNumbers[index]).Msg("playback failed")
		e.emit(Event{Kind: EventPlaybackFailed, Index: index, Err: err})
		if e.state == StatePlaying {
			e.state = StateAwaiting
			e.playbackFailed = true
		}
		return
	}

	if e.state != StatePlaying {
		e.emit(Event{Kind: EventPlayed, Index: index})
		return
	}

	e.state = StateAwaiting
	e.emit(Event{Kind: EventAwaiting, Index: index})
	e.timer = e.clock.AfterFunc(e.cfg.AdvanceAfter, func() {
		// The fake clock runs this while holding its lock.
		go e.post(func() { e.timerFired(step) })
	})
}

func (e *Engine) timerFired(step uint64) {
	if step != e.step || e.state != StateAwaiting {
		return
	}
	e.timer = nil
	e.captureAndAdvance("timer")
}

func (e *Engine) captureAndAdvance(trigger string) {
	e.endStep()
	index := e.index
	text := e.answers[index]
	e.captured[index] = true
	e.emit(Event{Kind: EventCaptured, Index: index, Text: text, Trigger: trigger})

	if next := index + 1; next < len(e.cfg.SentenceNumbers) {
		e.play(next)
		return
	}

	if e.cfg.Review {
		e.state = StateReview
		e.index = 0
		e.playbackFailed = false
		e.emit(Event{Kind: EventReview, Index: 0, Text: e.answers[0]})
		return
	}

	e.submit()
}

func (e *Engine) submit() {
	e.endStep()
	e.state = StateSubmitting
	e.lastErr = nil
	step := e.step

	answers := make(map[int]string, len(e.cfg.SentenceNumbers))
	for index, number := range e.cfg.SentenceNumbers {
		answers[number] = e.answers[index]
	}
	submission := Submission{SessionID: e.cfg.SessionID, Student: e.cfg.Student, Answers: answers}
	e.emit(Event{Kind: EventSubmitting})

	go func() {
		result, err := e.submitter.Submit(e.ctx, submission)
		e.post(func() { e.submitted(step, result, err) })
	}()
}

func (e *Engine) submitted(step uint64, result Result, err error) {
	if step != e.step || e.state != StateSubmitting {
		return
	}

	if err != nil {
		e.state = StateSubmitFailed
		e.lastErr = err
		e.logger.Warn().Err(err).Msg("submission failed")
		e.emit(Event{Kind: EventSubmitFailed, Err: err})
		return
	}

	e.state = StateDone
	e.result = &result
	e.logger.Info().Int("score", result.Score).Int("total", result.Total).Msg("attempt graded")
	e.emit(Event{Kind: EventDone})
	close(e.finished)
}

func (e *Engine) emit(event Event) {
	if e.cfg.Observer != nil {
		e.cfg.Observer(event)
	}
}
