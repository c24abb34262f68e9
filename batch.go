package emailhealth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optimode/emailhealth/internal/parse"
	"github.com/optimode/emailhealth/types"
)

// BatchOptions configures one ValidateBatch call.
type BatchOptions struct {
	// Workers is the number of concurrent goroutines, at most MaxWorkers.
	// Default: Options.Workers
	Workers int
	// OnProgress is called after every completed address, one call at a
	// time, from a worker goroutine. It must not block for long.
	OnProgress func(Progress)
	// Tracker, if set, is updated alongside OnProgress for pollers.
	Tracker *Tracker
}

// BatchReport is the outcome of ValidateBatch.
type BatchReport struct {
	// Results are in input order. For a cancelled run only the addresses
	// that finished are present; their Index field gives the input position.
	Results []ValidationResult `json:"results"`
	Summary BatchSummary       `json:"summary"`
	// Completed is false if the run was cancelled before every address
	// was processed.
	Completed bool          `json:"completed"`
	Duration  time.Duration `json:"duration"`
}

// ValidateBatch validates addresses concurrently and returns one result per
// address, in input order.
//
// Cancelling ctx stops the run between addresses: probes already in flight
// finish (bounded by their own timeouts) but no new address is started.
// A cancelled run is not an error; the report carries the finished results
// and Completed=false. The error is non-nil only for configuration problems.
//
// Addresses are scheduled grouped by domain for resolver cache locality.
// This does not affect the result order.
func (v *Validator) ValidateBatch(ctx context.Context, addresses []string, opts ...BatchOptions) (*BatchReport, error) {
	var o BatchOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Workers == 0 {
		o.Workers = v.opts.Workers
	}
	if o.Workers < 1 || o.Workers > MaxWorkers {
		return nil, fmt.Errorf("%w: Workers must be between 1 and %d (got %d)", ErrInvalidOptions, MaxWorkers, o.Workers)
	}

	e, err := v.newEngine()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log := v.log.WithFields(logrus.Fields{"total": len(addresses), "workers": o.Workers})
	log.Info("batch started")

	r := newBatchRun(addresses, o)
	r.run(ctx, e)

	report := &BatchReport{
		Results:   r.finished(),
		Completed: r.processed == len(addresses),
		Duration:  time.Since(start),
	}
	report.Summary = Summarize(len(addresses), report.Results)

	log.WithFields(logrus.Fields{
		"processed":    report.Summary.Processed,
		"valid":        report.Summary.Valid,
		"invalid":      report.Summary.Invalid,
		"unknown":      report.Summary.Unknown,
		"health_ratio": report.Summary.HealthRatio,
		"completed":    report.Completed,
		"duration":     report.Duration,
	}).Info("batch finished")

	return report, nil
}

type job struct {
	idx     int
	address string
	domain  string
}

// batchRun holds the mutable state of one ValidateBatch call.
type batchRun struct {
	opts BatchOptions
	jobs []job

	mu        sync.Mutex
	next      int
	results   []ValidationResult
	done      []bool
	processed int
	progress  Progress
}

func newBatchRun(addresses []string, opts BatchOptions) *batchRun {
	// Build and sort jobs by domain for cache locality
	jobs := make([]job, len(addresses))
	for i, a := range addresses {
		jobs[i] = job{idx: i, address: a, domain: parse.DomainOf(a)}
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].domain < jobs[j].domain
	})

	return &batchRun{
		opts:     opts,
		jobs:     jobs,
		results:  make([]ValidationResult, len(addresses)),
		done:     make([]bool, len(addresses)),
		progress: Progress{Total: len(addresses)},
	}
}

func (r *batchRun) run(ctx context.Context, e *Engine) {
	if r.opts.Tracker != nil {
		r.opts.Tracker.start(len(r.jobs))
		defer r.opts.Tracker.finish()
	}

	// In-flight work must not be cut short by cancellation of the run.
	work := context.WithoutCancel(ctx)

	workers := r.opts.Workers
	if workers > len(r.jobs) {
		workers = len(r.jobs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, ok := r.take(ctx)
				if !ok {
					return
				}
				r.complete(validateJob(work, e, j))
			}
		}()
	}
	wg.Wait()
}

// validateJob runs one address through the engine. A panic while checking
// it becomes an unknown result, so the other workers and the caller's
// goroutine keep going.
func validateJob(ctx context.Context, e *Engine, j job) (res ValidationResult) {
	defer func() {
		if p := recover(); p != nil {
			e.log.WithFields(logrus.Fields{"address": j.address, "panic": p}).Error("validation panicked")
			res = classified(ValidationResult{
				Index:   j.idx,
				Address: j.address,
				Domain:  j.domain,
			}, types.StatusUnknown, types.ReasonServerUnavailable, fmt.Sprintf("internal error: %v", p))
		}
	}()
	return e.Validate(ctx, j.idx, j.address)
}

// take hands out the next job unless the run is cancelled or drained.
func (r *batchRun) take(ctx context.Context) (job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil || r.next >= len(r.jobs) {
		return job{}, false
	}
	j := r.jobs[r.next]
	r.next++
	return j, true
}

// complete stores a result and reports progress. Holding the lock while
// calling OnProgress serializes the callback.
func (r *batchRun) complete(res ValidationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[res.Index] = res
	r.done[res.Index] = true
	r.processed++

	switch res.Status {
	case types.StatusValid:
		r.progress.Valid++
	case types.StatusInvalid:
		r.progress.Invalid++
	default:
		r.progress.Unknown++
	}
	r.progress.Processed = r.processed
	r.progress.Last = res

	if r.opts.Tracker != nil {
		r.opts.Tracker.record(res.Status)
	}
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(r.progress)
	}
}

// finished returns the completed results in input order.
func (r *batchRun) finished() []ValidationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processed == len(r.results) {
		return r.results
	}
	out := make([]ValidationResult, 0, r.processed)
	for i, ok := range r.done {
		if ok {
			out = append(out, r.results[i])
		}
	}
	return out
}
