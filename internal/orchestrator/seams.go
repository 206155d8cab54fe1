package orchestrator

import (
	"context"

	"github.com/TobiSchelling/chronos/internal/suggest"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

// WorkloadEstimator rates the user's current load from the tasks already
// planned.
type WorkloadEstimator interface {
	Workload(ctx context.Context, existing []taskstore.Task) suggest.Workload
}

// Optimizer refines a chosen suggestion against the context. An
// implementation must return a suggestion at least as complete as the one
// it was given and must not exceed the workload capacity.
type Optimizer interface {
	Optimize(ctx context.Context, s *suggest.Suggestion, c suggest.Context) *suggest.Suggestion
}

// FixedWorkload always reports a normal load at 70% capacity.
type FixedWorkload struct{}

func (FixedWorkload) Workload(context.Context, []taskstore.Task) suggest.Workload {
	return suggest.Workload{Status: "normal", Capacity: 0.7}
}

// Passthrough returns suggestions unchanged.
type Passthrough struct{}

func (Passthrough) Optimize(_ context.Context, s *suggest.Suggestion, _ suggest.Context) *suggest.Suggestion {
	return s
}
