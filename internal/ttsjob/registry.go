// Package ttsjob runs background audio synthesis for problem sets and tracks its progress.
package ttsjob

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

const subscriberBufferSize = 32

// Status is the lifecycle state of a synthesis job.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Progress is a point-in-time snapshot of one job.
type Progress struct {
	Status    Status    `json:"status"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the job has stopped changing.
func (p Progress) Terminal() bool {
	return p.Status == StatusComplete || p.Status == StatusError
}

// Update is emitted to subscribers whenever an entry changes or is removed.
type Update struct {
	ProblemSetID uint `json:"problem_set_id"`
	Removed      bool `json:"removed,omitempty"`
	Progress
}

// Ticket identifies one job generation for a problem set. Jobs queued while a
// generation is running share its ticket; only the newest generation moves the entry.
type Ticket struct {
	ProblemSetID uint
	Generation   uint64
}

type registryEntry struct {
	progress   Progress
	generation uint64
	finishedAt time.Time
}

// Registry is the in-memory job status ledger. Terminal entries are kept for the
// retention window and then evicted; nothing survives a restart.
type Registry struct {
	mu          sync.RWMutex
	clock       clock.WithTicker
	retention   time.Duration
	entries     map[uint]*registryEntry
	generation  uint64
	subMu       sync.RWMutex
	subscribers map[chan Update]struct{}
	logger      zerolog.Logger
}

// NewRegistry creates an empty registry. A nil clock uses wall time.
func NewRegistry(clk clock.WithTicker, retention time.Duration, logger zerolog.Logger) *Registry {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if retention <= 0 {
		retention = 5 * time.Minute
	}

	return &Registry{
		clock:       clk,
		retention:   retention,
		entries:     make(map[uint]*registryEntry),
		subscribers: make(map[chan Update]struct{}),
		logger:      logger.With().Str("component", "tts_registry").Logger(),
	}
}

// Begin opens a job for the problem set. While the current entry is still generating
// the new work joins it: total grows and the same ticket is returned, so a failure in
// either job leaves the entry in error. Otherwise a new generation replaces the entry.
func (r *Registry) Begin(problemSetID uint, total int) Ticket {
	if total < 0 {
		total = 0
	}

	r.mu.Lock()
	now := r.clock.Now()
	entry, ok := r.entries[problemSetID]
	if ok && !entry.progress.Terminal() {
		entry.progress.Total += total
		entry.progress.UpdatedAt = now
	} else {
		r.generation++
		entry = &registryEntry{
			generation: r.generation,
			progress: Progress{
				Status:    StatusGenerating,
				Total:     total,
				UpdatedAt: now,
			},
		}
		if total == 0 {
			entry.progress.Status = StatusComplete
			entry.finishedAt = now
		}
		r.entries[problemSetID] = entry
	}
	ticket := Ticket{ProblemSetID: problemSetID, Generation: entry.generation}
	update := Update{ProblemSetID: problemSetID, Progress: entry.progress}
	r.mu.Unlock()

	r.notify(update)
	return ticket
}

// Advance records one more finished sentence. The job completes when current reaches total.
// It returns false when the ticket has been superseded or the job already stopped.
func (r *Registry) Advance(ticket Ticket) bool {
	return r.mutate(ticket, func(p *Progress) {
		if p.Current < p.Total {
			p.Current++
		}
		if p.Current == p.Total {
			p.Status = StatusComplete
		}
	})
}

// MarkError stops the job with the given cause.
func (r *Registry) MarkError(ticket Ticket, cause error) bool {
	return r.mutate(ticket, func(p *Progress) {
		p.Status = StatusError
		if cause != nil {
			p.Error = cause.Error()
		}
	})
}

// MarkComplete forces the job to complete.
func (r *Registry) MarkComplete(ticket Ticket) bool {
	return r.mutate(ticket, func(p *Progress) {
		p.Current = p.Total
		p.Status = StatusComplete
	})
}

func (r *Registry) mutate(ticket Ticket, apply func(*Progress)) bool {
	r.mu.Lock()
	entry, ok := r.entries[ticket.ProblemSetID]
	if !ok || entry.generation != ticket.Generation || entry.progress.Terminal() {
		r.mu.Unlock()
		return false
	}

	apply(&entry.progress)
	now := r.clock.Now()
	entry.progress.UpdatedAt = now
	if entry.progress.Terminal() {
		entry.finishedAt = now
	}
	update := Update{ProblemSetID: ticket.ProblemSetID, Progress: entry.progress}
	r.mu.Unlock()

	r.notify(update)
	return true
}

// Get returns the entry for a problem set, or false if none is tracked.
func (r *Registry) Get(problemSetID uint) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[problemSetID]
	if !ok || r.expired(entry, r.clock.Now()) {
		return Progress{}, false
	}
	return entry.progress, true
}

// All returns every in-flight and recently finished entry.
func (r *Registry) All() map[uint]Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	out := make(map[uint]Progress, len(r.entries))
	for id, entry := range r.entries {
		if r.expired(entry, now) {
			continue
		}
		out[id] = entry.progress
	}
	return out
}

// Current reports whether ticket is still the newest generation for its problem set.
func (r *Registry) Current(ticket Ticket) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[ticket.ProblemSetID]
	return ok && entry.generation == ticket.Generation
}

// Forget drops the entry for a deleted problem set.
func (r *Registry) Forget(problemSetID uint) {
	r.mu.Lock()
	_, ok := r.entries[problemSetID]
	delete(r.entries, problemSetID)
	r.mu.Unlock()

	if ok {
		r.notify(Update{ProblemSetID: problemSetID, Removed: true})
	}
}

// Sweep evicts terminal entries older than the retention window.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.clock.Now()
	var evicted []uint
	for id, entry := range r.entries {
		if r.expired(entry, now) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.notify(Update{ProblemSetID: id, Removed: true})
	}
	if len(evicted) > 0 {
		r.logger.Debug().Int("evicted", len(evicted)).Msg("tts status entries evicted")
	}
	return len(evicted)
}

// Start sweeps expired entries until ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.retention)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				r.Sweep()
			}
		}
	}()
}

// Subscribe streams updates until the returned cancel func is called. Slow
// subscribers miss updates rather than block writers.
func (r *Registry) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBufferSize)

	r.subMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subscribers, ch)
			close(ch)
			r.subMu.Unlock()
		})
	}
}

func (r *Registry) notify(update Update) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for ch := range r.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

func (r *Registry) expired(entry *registryEntry, now time.Time) bool {
	return !entry.finishedAt.IsZero() && now.Sub(entry.finishedAt) >= r.retention
}
