package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/dictation-api/internal/exam"
	"github.com/noah-isme/dictation-api/internal/examclient"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take <session-id>",
		Short: "Listen to each sentence and type what you hear",
		Args:  cobra.ExactArgs(1),
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.Int("grade", 0, "Grade (1-6)")
	f.Int("class", 0, "Class number")
	f.Int("number", 0, "Student number")
	f.String("name", "", "Student name")
	f.Float64("speed", examclient.DefaultSpeed, "Playback speed")
	f.String("player", "ffplay", "Audio player command")
	f.Bool("review", false, "Review and revise answers before submitting")
	f.Duration("advance-after", exam.DefaultAdvanceAfter, "Move on this long after a sentence finishes playing")
	f.Duration("repeat-pause", exam.DefaultRepeatPause, "Pause between repeats of a sentence")
	f.Duration("timeout", 15*time.Second, "Timeout for each API request")

	_ = cmd.MarkFlagRequired("grade")
	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runTake(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	logger := newLogger(v)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := examclient.New(v.GetString("api"), v.GetDuration("timeout"), logger)
	if err != nil {
		return err
	}

	session, err := client.LoadSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	playerCfg := examclient.DefaultPlayerConfig()
	if command := v.GetString("player"); command != playerCfg.Command {
		playerCfg.Command = command
		playerCfg.Args = []string{"{file}"}
	}
	playerCfg.Speed = v.GetFloat64("speed")
	playerCfg.Logger = logger

	player, err := examclient.NewPlayer(client, playerCfg)
	if err != nil {
		return err
	}
	defer player.Close()

	out := newConsole(cmd.OutOrStdout(), session.SentenceNumbers)
	out.printf("%s: %d sentences, each read %d time(s).\n", session.Title, len(session.SentenceNumbers), session.ReadCount)

	engine, err := exam.New(exam.Config{
		SessionID:       session.ID,
		ProblemSetID:    session.ProblemSetID,
		SentenceNumbers: session.SentenceNumbers,
		ReadCount:       session.ReadCount,
		Student: exam.Student{
			Grade:      v.GetInt("grade"),
			ClassNum:   v.GetInt("class"),
			StudentNum: v.GetInt("number"),
			Name:       v.GetString("name"),
		},
		AdvanceAfter: v.GetDuration("advance-after"),
		RepeatPause:  v.GetDuration("repeat-pause"),
		Review:       v.GetBool("review"),
		Observer:     out.observe,
		Logger:       logger,
	}, player, client)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Start(); err != nil {
		return err
	}

	return out.run(ctx, engine, cmd.InOrStdin())
}

// console renders engine events and turns typed lines into engine actions.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	numbers []int
}

func newConsole(out io.Writer, numbers []int) *console {
	return &console{out: out, numbers: numbers}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) number(index int) int {
	if index < 0 || index >= len(c.numbers) {
		return 0
	}
	return c.numbers[index]
}

func (c *console) observe(event exam.Event) {
	switch event.Kind {
	case exam.EventPlaying:
		c.printf("Sentence %d (%d/%d): listen...\n", c.number(event.Index), event.Index+1, len(c.numbers))
	case exam.EventAwaiting:
		c.printf("Type your answer and press Enter.\n")
	case exam.EventPlaybackFailed:
		c.printf("Audio could not be played (%v). Type :r to try again or press Enter to skip.\n", event.Err)
	case exam.EventCaptured:
		c.printf("Saved sentence %d.\n", c.number(event.Index))
	case exam.EventReview:
		c.printf("Review: :g <n> selects a sentence, :r listens again, :s submits.\n")
		c.printf("Sentence %d: %q\n", c.number(event.Index), event.Text)
	case exam.EventSelected:
		c.printf("Sentence %d: %q\n", c.number(event.Index), event.Text)
	case exam.EventSubmitting:
		c.printf("Submitting...\n")
	case exam.EventSubmitFailed:
		c.printf("Submission failed: %v. Type :s to try again.\n", event.Err)
	}
}

func (c *console) run(ctx context.Context, engine *exam.Engine, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	type outcome struct {
		result exam.Result
		err    error
	}
	finished := make(chan outcome, 1)
	go func() {
		result, err := engine.Wait(ctx)
		finished <- outcome{result: result, err: err}
	}()

	for {
		select {
		case done := <-finished:
			if done.err != nil {
				return done.err
			}
			c.printResult(done.result)
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if engine.Snapshot().State == exam.StateReview {
					c.report(engine.Submit())
				}
				continue
			}
			c.handle(engine, line)
		}
	}
}

func (c *console) handle(engine *exam.Engine, line string) {
	snap := engine.Snapshot()
	command := strings.TrimSpace(line)

	switch snap.State {
	case exam.StatePlaying, exam.StateAwaiting:
		if command == ":r" {
			if err := engine.Replay(); err != nil {
				c.printf("Wait for the sentence to finish before replaying.\n")
			}
			return
		}
		if err := engine.Commit(snap.Index, line); errors.Is(err, exam.ErrStaleAction) {
			c.printf("Time ran out for sentence %d; that line was not saved.\n", c.number(snap.Index))
		}
	case exam.StateReview:
		switch {
		case command == ":s":
			c.report(engine.Submit())
		case command == ":r":
			c.report(engine.Replay())
		case strings.HasPrefix(command, ":g"):
			number, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(command, ":g")))
			if err != nil {
				c.printf("Usage: :g <sentence number>\n")
				return
			}
			c.report(engine.GoTo(c.indexOf(number)))
		default:
			c.report(engine.Input(line))
		}
	case exam.StateSubmitFailed:
		if command == ":s" {
			c.report(engine.Submit())
			return
		}
		c.printf("Type :s to try submitting again.\n")
	case exam.StateSubmitting:
		c.printf("Still submitting...\n")
	}
}

func (c *console) indexOf(number int) int {
	for index, n := range c.numbers {
		if n == number {
			return index
		}
	}
	return -1
}

func (c *console) report(err error) {
	if err != nil {
		c.printf("%v\n", err)
	}
}

func (c *console) printResult(result exam.Result) {
	c.printf("Score: %d/%d\n", result.Score, result.Total)
	for _, verdict := range result.Verdicts {
		mark := "X"
		if verdict.IsCorrect {
			mark = "O"
		}
		c.printf("%s %d. %s", mark, verdict.SentenceNumber, verdict.StudentAnswer)
		if !verdict.IsCorrect {
			c.printf("  (answer: %s)", verdict.CorrectAnswer)
		}
		c.printf("\n")
	}
}
