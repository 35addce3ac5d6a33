package generation

import (
	"context"
	"log/slog"
)

// RequestState is the lifecycle position of a single request.
//
//	Pending -> Dispatched -> Succeeded
//	                      -> Retrying -> Dispatched
//	                      -> Failed
type RequestState string

const (
	StatePending    RequestState = "pending"
	StateDispatched RequestState = "dispatched"
	StateRetrying   RequestState = "retrying"
	StateSucceeded  RequestState = "succeeded"
	StateFailed     RequestState = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s RequestState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var transitions = map[RequestState][]RequestState{
	StatePending:    {StateDispatched, StateSucceeded, StateFailed},
	StateDispatched: {StateSucceeded, StateRetrying, StateFailed},
	StateRetrying:   {StateDispatched, StateFailed},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Pending may jump straight to a terminal state for cache hits and
// attachment errors.
func CanTransition(from, to RequestState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type requestTracker struct {
	id     string
	state  RequestState
	logger *slog.Logger
}

func newRequestTracker(id string, logger *slog.Logger) *requestTracker {
	return &requestTracker{id: id, state: StatePending, logger: logger}
}

func (t *requestTracker) to(ctx context.Context, next RequestState) {
	if !CanTransition(t.state, next) {
		t.logger.WarnContext(ctx, "Illegal request state transition",
			"id", t.id, "from", t.state, "to", next)
	}
	t.logger.DebugContext(ctx, "Request state changed", "id", t.id, "from", t.state, "to", next)
	t.state = next
}
