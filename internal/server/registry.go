package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/csvinput"
)

// State is the lifecycle position of a Run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Run is one background batch started through the API.
type Run struct {
	ID      string
	Created time.Time
	Total   int
	// Source describes the uploaded file, nil for JSON submissions.
	Source *csvinput.Extraction

	tracker *emailhealth.Tracker
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.RWMutex
	state    State
	report   *emailhealth.BatchReport
	err      error
	finished time.Time
}

func newRun(total int, src *csvinput.Extraction, cancel context.CancelFunc) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Created: time.Now(),
		Total:   total,
		Source:  src,
		tracker: emailhealth.NewTracker(),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateRunning,
	}
}

// Progress returns the live counters of the run.
func (r *Run) Progress() emailhealth.Progress {
	p := r.tracker.Snapshot()
	if p.Total == 0 {
		p.Total = r.Total
	}
	return p
}

// State returns the current state and, once finished, the report or error.
func (r *Run) State() (State, *emailhealth.BatchReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.report, r.err
}

// Finished returns when the run stopped, zero while it is running.
func (r *Run) Finished() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished
}

// Done is closed once the final state is recorded.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel asks the run to stop after the addresses in flight.
func (r *Run) Cancel() {
	r.cancel()
}

func (r *Run) finish(report *emailhealth.BatchReport, err error) {
	r.mu.Lock()
	switch {
	case err != nil:
		r.state = StateFailed
	case report.Completed:
		r.state = StateCompleted
	default:
		r.state = StateCancelled
	}
	r.report = report
	r.err = err
	r.finished = time.Now()
	r.mu.Unlock()

	r.cancel()
	close(r.done)
}

// Registry keeps runs in memory. Finished runs are dropped once they are
// older than the retention window; eviction happens lazily on access.
type Registry struct {
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	runs map[string]*Run
}

func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		retention: retention,
		now:       time.Now,
		runs:      make(map[string]*Run),
	}
}

// Add stores run under its ID.
func (g *Registry) Add(run *Run) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictLocked()
	g.runs[run.ID] = run
}

// Get looks a run up by ID.
func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictLocked()
	run, ok := g.runs[id]
	return run, ok
}

// Len returns the number of runs held.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runs)
}

// CancelAll cancels every run that is still going.
func (g *Registry) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, run := range g.runs {
		run.Cancel()
	}
}

func (g *Registry) evictLocked() {
	cutoff := g.now().Add(-g.retention)
	for id, run := range g.runs {
		if f := run.Finished(); !f.IsZero() && f.Before(cutoff) {
			delete(g.runs, id)
		}
	}
}
