package generation

import (
	"sync"
	"time"

	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/google/uuid"
)

// Status is the terminal state of a request.
type Status int

const (
	StatusSucceeded Status = iota + 1
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal record of one request.
type Outcome struct {
	ID     string
	Status Status

	// Text is the generated text on success and "Error: <message>" on failure.
	Text string

	// Err is the last error seen for a failed request.
	Err error

	// Attempts counts remote calls; zero for cache hits and attachment errors.
	Attempts int
	Cached   bool
	Duration time.Duration
}

// Result collects the outcomes of one Generate call.
type Result struct {
	BatchID uuid.UUID
	Total   int

	mu       sync.Mutex
	outcomes []Outcome
	progress func(done, total int)
}

func newResult(total int, progress func(done, total int)) *Result {
	return &Result{
		BatchID:  uuid.New(),
		Total:    total,
		outcomes: make([]Outcome, 0, total),
		progress: progress,
	}
}

func (r *Result) add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, o)
	if r.progress != nil {
		r.progress(len(r.outcomes), r.Total)
	}
}

// Outcomes returns a copy of every outcome in completion order.
func (r *Result) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

// Succeeded returns the successful outcomes in completion order.
func (r *Result) Succeeded() []Outcome {
	return r.filter(StatusSucceeded)
}

// Failed returns the failed outcomes in completion order.
func (r *Result) Failed() []Outcome {
	return r.filter(StatusFailed)
}

func (r *Result) filter(status Status) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Outcome
	for _, o := range r.outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Completed returns the number of requests that reached a terminal state.
// It is lower than Total only when the call was cancelled.
func (r *Result) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// SuccessRate is successes divided by Total, or 0 for an empty batch.
func (r *Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Succeeded())) / float64(r.Total)
}

// Frame returns the (id, result) table of the successful rows in completion order.
func (r *Result) Frame() *frame.Frame {
	f := frame.MustNew(ColumnID, ColumnResult)
	for _, o := range r.Succeeded() {
		// Width always matches the two columns above.
		_ = f.Append(o.ID, o.Text)
	}
	return f
}
