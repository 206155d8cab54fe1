// Package orchestrator turns a task request into a schedule suggestion,
// combining learned patterns, the user's current context and a two-tier
// suggestion strategy.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/logging"
	"github.com/TobiSchelling/chronos/internal/metrics"
	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/suggest"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

// existingTaskWindow is how far back existing tasks are fetched for context.
const existingTaskWindow = 24 * time.Hour

// PatternSource is the read side of the pattern analyzer.
type PatternSource interface {
	CurrentPatterns(ctx context.Context) ([]patterns.Stored, error)
	RecentPerformance(ctx context.Context) (patterns.Performance, error)
	EnergyPatterns(ctx context.Context) (patterns.EnergyCycles, error)
}

// Deps are the collaborators of an Orchestrator. Patterns is required;
// a nil Primary always uses the fallback and a nil Tasks skips the task
// store entirely.
type Deps struct {
	Patterns  PatternSource
	Primary   suggest.Strategy
	Tasks     taskstore.Store
	Optimizer Optimizer
	Workload  WorkloadEstimator
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Result is the response to one orchestration call.
type Result struct {
	SessionID      string                `json:"session_id"`
	Task           TaskRequest           `json:"task"`
	Suggestion     *suggest.Suggestion   `json:"suggestion"`
	Context        suggest.Context       `json:"context"`
	Confidence     float64               `json:"confidence"`
	Reasoning      string                `json:"reasoning"`
	Alternatives   []suggest.Alternative `json:"alternatives"`
	ExternalTaskID *string               `json:"external_task_id"`
}

// Orchestrator schedules tasks. It is safe for concurrent use.
type Orchestrator struct {
	patterns  PatternSource
	primary   suggest.Strategy
	fallback  suggest.Fallback
	tasks     taskstore.Store
	optimizer Optimizer
	workload  WorkloadEstimator
	timeout   time.Duration
	sessionID string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates an Orchestrator. The AI strategy is bounded by cfg's timeout.
func New(cfg config.AI, deps Deps) *Orchestrator {
	logger := logging.OrNop(deps.Logger)
	if deps.Optimizer == nil {
		deps.Optimizer = Passthrough{}
	}
	if deps.Workload == nil {
		deps.Workload = FixedWorkload{}
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	sessionID := "chronos_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	o := &Orchestrator{
		patterns:  deps.Patterns,
		primary:   deps.Primary,
		tasks:     deps.Tasks,
		optimizer: deps.Optimizer,
		workload:  deps.Workload,
		timeout:   timeout,
		sessionID: sessionID,
		logger:    logger.Named("orchestrator").With(zap.String("session_id", sessionID)),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
	o.logger.Info("orchestrator ready",
		zap.Bool("ai_enabled", deps.Primary != nil),
		zap.Bool("task_store_enabled", deps.Tasks != nil),
		zap.Duration("ai_timeout", timeout),
	)
	return o
}

// SessionID identifies this Orchestrator in logs and responses.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Orchestrate validates req, gathers context, picks a suggestion and, when
// a task store is configured, creates the task there. Only a
// *ValidationError is returned; every external failure degrades to the
// fallback suggestion or an empty value.
func (o *Orchestrator) Orchestrate(ctx context.Context, req TaskRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sctx := o.gatherContext(ctx)

	current, err := o.patterns.CurrentPatterns(ctx)
	if err != nil {
		o.logger.Warn("reading patterns failed, continuing without", zap.Error(err))
		current = nil
	}

	sreq := suggest.Request{Task: req.task(), Patterns: current, Context: sctx}
	s := o.suggest(ctx, sreq)

	if optimized := o.optimizer.Optimize(ctx, s, sctx); optimized != nil {
		s = optimized
	}

	o.metrics.RecordSuggestion(s.Source)

	return &Result{
		SessionID:      o.sessionID,
		Task:           req,
		Suggestion:     s,
		Context:        sctx,
		Confidence:     s.Confidence,
		Reasoning:      s.Reasoning,
		Alternatives:   s.Alternatives,
		ExternalTaskID: o.persist(ctx, req, s),
	}, nil
}

func (o *Orchestrator) gatherContext(ctx context.Context) suggest.Context {
	sctx := suggest.Context{
		CurrentTime:   o.now(),
		ExistingTasks: []taskstore.Task{},
	}

	if o.tasks != nil {
		existing, err := o.tasks.RecentTasks(ctx, existingTaskWindow)
		if err != nil {
			o.logger.Warn("fetching existing tasks failed, using empty list", zap.Error(err))
		} else {
			sctx.ExistingTasks = existing
			o.logger.Debug("fetched existing tasks", zap.Int("count", len(existing)))
		}
	}

	if perf, err := o.patterns.RecentPerformance(ctx); err != nil {
		o.logger.Warn("reading recent performance failed", zap.Error(err))
	} else {
		sctx.RecentPerformance = perf
	}

	if energy, err := o.patterns.EnergyPatterns(ctx); err != nil {
		o.logger.Warn("reading energy patterns failed", zap.Error(err))
	} else {
		sctx.EnergyPatterns = energy
	}

	sctx.WorkloadStatus = o.workload.Workload(ctx, sctx.ExistingTasks)
	return sctx
}

// suggest tries the primary strategy within the timeout and falls back to
// the local rules on any failure.
func (o *Orchestrator) suggest(ctx context.Context, req suggest.Request) *suggest.Suggestion {
	if o.primary != nil {
		start := time.Now()
		s, err := o.runPrimary(ctx, req)
		o.metrics.ObserveAI(time.Since(start))
		if err == nil {
			o.logger.Info("AI suggestion accepted",
				zap.String("title", req.Task.Title),
				zap.Time("scheduled_at", s.ScheduledAt),
				zap.Float64("confidence", s.Confidence),
			)
			return s
		}

		class := suggest.ErrorClass(err)
		o.metrics.RecordAIFailure(class)
		o.logger.Warn("AI suggestion failed, using fallback",
			zap.String("title", req.Task.Title),
			zap.String("error_class", class),
			zap.Error(err),
		)
	}

	s := o.fallback.Build(req)
	o.logger.Info("fallback suggestion",
		zap.String("title", req.Task.Title),
		zap.Strings("rule", s.ContextFactors),
		zap.Time("scheduled_at", s.ScheduledAt),
	)
	return s
}

type primaryResult struct {
	s   *suggest.Suggestion
	err error
}

// runPrimary bounds the primary strategy by the timeout even when the
// strategy ignores its context.
func (o *Orchestrator) runPrimary(ctx context.Context, req suggest.Request) (*suggest.Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan primaryResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- primaryResult{err: fmt.Errorf("%s strategy panicked: %v", o.primary.Name(), r)}
			}
		}()
		s, err := o.primary.Suggest(ctx, req)
		done <- primaryResult{s: s, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.s == nil || r.s.ScheduledAt.IsZero() {
			return nil, fmt.Errorf("%w: empty suggestion", suggest.ErrMalformed)
		}
		return r.s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// persist creates the task in the task store and returns its ID, or nil
// when no store is configured or the write failed.
func (o *Orchestrator) persist(ctx context.Context, req TaskRequest, s *suggest.Suggestion) *string {
	if o.tasks == nil {
		o.logger.Debug("task store not configured, task not saved")
		return nil
	}

	id, err := o.tasks.Create(ctx, taskstore.NewTask{
		Title:         req.Title,
		Category:      req.Category,
		Priority:      req.Priority,
		Description:   req.Description,
		EstimatedTime: req.EstimatedTime,
		ScheduledAt:   s.ScheduledAt,
		Confidence:    s.Confidence,
		Reasoning:     s.Reasoning,
	})
	if err != nil || id == "" {
		o.metrics.RecordPersistenceFailure("tasks")
		o.logger.Warn("creating task in task store failed", zap.String("title", req.Title), zap.Error(err))
		return nil
	}
	o.logger.Info("task created in task store", zap.String("external_task_id", id))
	return &id
}
