package ttsjob

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu      sync.Mutex
	order   []Job
	running map[uint]int
	overlap bool
	release chan struct{}
	started chan Job
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{
		running: make(map[uint]int),
		started: make(chan Job, 16),
	}
}

func (r *recordingRunner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.running[job.ProblemSetID()]++
	if r.running[job.ProblemSetID()] > 1 {
		r.overlap = true
	}
	release := r.release
	r.mu.Unlock()

	r.started <- job

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	r.order = append(r.order, job)
	r.running[job.ProblemSetID()]--
	r.mu.Unlock()

	return ctx.Err()
}

func (r *recordingRunner) finished() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.order...)
}

func waitForJob(t *testing.T, ch <-chan Job) Job {
	t.Helper()
	select {
	case job := <-ch:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to start")
		return Job{}
	}
}

func TestDispatcherRunsSameProblemSetInOrder(t *testing.T) {
	runner := newRecordingRunner()
	runner.release = make(chan struct{})
	dispatcher := NewDispatcher(runner, 3, 8, zerolog.Nop())
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	first := Job{Ticket: Ticket{ProblemSetID: 1, Generation: 1}}
	second := Job{Ticket: Ticket{ProblemSetID: 1, Generation: 2}}
	third := Job{Ticket: Ticket{ProblemSetID: 1, Generation: 3}}

	require.NoError(t, dispatcher.Enqueue(first))
	require.NoError(t, dispatcher.Enqueue(second))
	require.NoError(t, dispatcher.Enqueue(third))

	for i := 0; i < 3; i++ {
		started := waitForJob(t, runner.started)
		require.Equal(t, uint64(i+1), started.Ticket.Generation)
		runner.release <- struct{}{}
	}

	require.Eventually(t, func() bool { return len(runner.finished()) == 3 }, 2*time.Second, 10*time.Millisecond)
	runner.mu.Lock()
	require.False(t, runner.overlap)
	runner.mu.Unlock()
}

func TestDispatcherRunsDifferentProblemSetsConcurrently(t *testing.T) {
	runner := newRecordingRunner()
	runner.release = make(chan struct{})
	dispatcher := NewDispatcher(runner, 2, 8, zerolog.Nop())
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 1, Generation: 1}}))
	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 2, Generation: 2}}))

	a := waitForJob(t, runner.started)
	b := waitForJob(t, runner.started)
	require.ElementsMatch(t, []uint{1, 2}, []uint{a.ProblemSetID(), b.ProblemSetID()})

	close(runner.release)
}

func TestDispatcherCancelDropsQueuedAndRunning(t *testing.T) {
	runner := newRecordingRunner()
	runner.release = make(chan struct{})
	dispatcher := NewDispatcher(runner, 1, 8, zerolog.Nop())
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 4, Generation: 1}}))
	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 4, Generation: 2}}))
	waitForJob(t, runner.started)

	dispatcher.Cancel(4)

	require.Eventually(t, func() bool { return len(runner.finished()) == 1 }, 2*time.Second, 10*time.Millisecond)
	select {
	case job := <-runner.started:
		t.Fatalf("queued job %d should have been dropped", job.Ticket.Generation)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherRejectsWhenFullOrStopped(t *testing.T) {
	runner := newRecordingRunner()
	dispatcher := NewDispatcher(runner, 1, 1, zerolog.Nop())

	// Not started: the single ready slot fills up.
	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 1}}))
	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 1, Generation: 2}}), "same problem set shares its slot")
	require.ErrorIs(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 2}}), ErrQueueFull)

	dispatcher.Stop()
	require.ErrorIs(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 3}}), ErrDispatcherStopped)
}

type panickingRunner struct {
	ran chan Job
}

func (r *panickingRunner) Run(_ context.Context, job Job) error {
	if job.Ticket.Generation == 1 {
		panic("nil audio reference")
	}
	r.ran <- job
	return nil
}

func TestDispatcherSurvivesPanickingJob(t *testing.T) {
	runner := &panickingRunner{ran: make(chan Job, 1)}
	dispatcher := NewDispatcher(runner, 1, 8, zerolog.Nop())
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 1, Generation: 1}}))
	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 2, Generation: 2}}))

	job := waitForJob(t, runner.ran)
	require.Equal(t, uint(2), job.ProblemSetID())
}

// stubbornRunner ignores cancellation until released, like a provider call in flight.
type stubbornRunner struct {
	started  chan struct{}
	release  chan struct{}
	returned chan struct{}
}

func (r *stubbornRunner) Run(context.Context, Job) error {
	close(r.started)
	<-r.release
	close(r.returned)
	return nil
}

func TestDispatcherCancelWaitsForRunningJob(t *testing.T) {
	runner := &stubbornRunner{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		returned: make(chan struct{}),
	}
	dispatcher := NewDispatcher(runner, 1, 8, zerolog.Nop())
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	require.NoError(t, dispatcher.Enqueue(Job{Ticket: Ticket{ProblemSetID: 3, Generation: 1}}))
	<-runner.started

	cancelled := make(chan struct{})
	go func() {
		dispatcher.Cancel(3)
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while the job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not return after the job finished")
	}

	select {
	case <-runner.returned:
	default:
		t.Fatal("Cancel returned before Run")
	}
}
