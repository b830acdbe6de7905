package ttsjob

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/observability"
)

var (
	// ErrQueueFull indicates no slot is free for another problem set.
	ErrQueueFull = errors.New("tts job queue is full")
	// ErrDispatcherStopped indicates the dispatcher no longer accepts jobs.
	ErrDispatcherStopped = errors.New("tts dispatcher stopped")
	// ErrJobPanicked indicates a job crashed instead of returning an error.
	ErrJobPanicked = errors.New("tts job panicked")
)

// runningJob is the job a worker is executing for a problem set.
type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Dispatcher runs jobs on a fixed worker pool. Jobs for the same problem set run
// one at a time in enqueue order; different problem sets run in parallel.
type Dispatcher struct {
	runner  JobRunner
	workers int
	ready   chan uint
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[uint][]Job
	// active holds problem sets that are queued or running; the value is set while a job runs.
	active  map[uint]*runningJob
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher; call Start before enqueueing.
func NewDispatcher(runner JobRunner, workers, queueSize int, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Dispatcher{
		runner:  runner,
		workers: workers,
		ready:   make(chan uint, queueSize),
		pending: make(map[uint][]Job),
		active:  make(map[uint]*runningJob),
		logger:  logger.With().Str("component", "tts_dispatcher").Logger(),
	}
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
	d.logger.Info().Int("workers", d.workers).Msg("tts dispatcher started")
}

// Enqueue schedules job and returns without waiting for it.
func (d *Dispatcher) Enqueue(job Job) error {
	id := job.ProblemSetID()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	if _, scheduled := d.active[id]; !scheduled {
		select {
		case d.ready <- id:
			d.active[id] = nil
		default:
			return ErrQueueFull
		}
	}

	d.pending[id] = append(d.pending[id], job)
	observability.TTSQueueDepth().Inc()
	return nil
}

// Cancel drops queued jobs for a problem set, cancels the one running, if any, and
// waits for it to return. Nothing is written for the problem set once Cancel returns.
func (d *Dispatcher) Cancel(problemSetID uint) {
	d.mu.Lock()
	if dropped := len(d.pending[problemSetID]); dropped > 0 {
		observability.TTSQueueDepth().Sub(float64(dropped))
		d.pending[problemSetID] = nil
	}
	running := d.active[problemSetID]
	d.mu.Unlock()

	if running == nil {
		return
	}
	running.cancel()
	<-running.done
}

// Stop refuses new jobs, cancels running ones and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.ready:
			d.drain(ctx, worker, id)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context, worker int, id uint) {
	for {
		d.mu.Lock()
		jobs := d.pending[id]
		if len(jobs) == 0 || ctx.Err() != nil {
			delete(d.pending, id)
			delete(d.active, id)
			d.mu.Unlock()
			return
		}
		job := jobs[0]
		d.pending[id] = jobs[1:]
		jobCtx, cancel := context.WithCancel(ctx)
		running := &runningJob{cancel: cancel, done: make(chan struct{})}
		d.active[id] = running
		d.mu.Unlock()

		observability.TTSQueueDepth().Dec()
		if err := d.run(jobCtx, job); err != nil {
			d.logger.Warn().Err(err).Int("worker", worker).Uint("problem_set_id", id).Msg("tts job ended with error")
		}
		cancel()
		close(running.done)
	}
}

// run keeps a crashing job from taking the worker, and the process, down with it.
func (d *Dispatcher) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, recovered)
		}
	}()
	return d.runner.Run(ctx, job)
}
