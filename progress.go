package emailhealth

import (
	"sync"
	"sync/atomic"

	"github.com/optimode/emailhealth/types"
)

// Progress is a point-in-time view of a running batch.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Unknown   int `json:"unknown"`
	// Last is the most recently completed result. Zero in Tracker snapshots.
	Last types.ValidationResult `json:"-"`
}

// Fraction returns Processed/Total in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total)
}

// Tracker exposes the progress of a batch to observers that poll instead
// of receiving callbacks. It is safe for concurrent use.
// A Tracker serves a single batch.
type Tracker struct {
	total     atomic.Int64
	processed atomic.Int64
	valid     atomic.Int64
	invalid   atomic.Int64
	unknown   atomic.Int64

	once sync.Once
	done chan struct{}
}

func NewTracker() *Tracker {
	return &Tracker{done: make(chan struct{})}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Progress {
	return Progress{
		Total:     int(t.total.Load()),
		Processed: int(t.processed.Load()),
		Valid:     int(t.valid.Load()),
		Invalid:   int(t.invalid.Load()),
		Unknown:   int(t.unknown.Load()),
	}
}

// Done is closed when the batch has stopped, completed or cancelled.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) start(total int) {
	t.total.Store(int64(total))
}

func (t *Tracker) record(status types.Status) {
	switch status {
	case types.StatusValid:
		t.valid.Add(1)
	case types.StatusInvalid:
		t.invalid.Add(1)
	default:
		t.unknown.Add(1)
	}
	t.processed.Add(1)
}

func (t *Tracker) finish() {
	t.once.Do(func() { close(t.done) })
}
