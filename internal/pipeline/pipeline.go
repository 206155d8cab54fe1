// Package pipeline runs the learning cycle: pull completed-task history from
// the task store, recompute patterns, and summarize feedback trends.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/database"
	"github.com/TobiSchelling/chronos/internal/feedback"
	"github.com/TobiSchelling/chronos/internal/logging"
	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

// ErrNoTaskStore is reported when learning is requested without a task store.
var ErrNoTaskStore = errors.New("task store not configured")

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the three learning steps.
type Pipeline struct {
	cfg       *config.Config
	db        *database.DB
	store     taskstore.Store
	analyzer  *patterns.Analyzer
	processor *feedback.Processor
	logger    *zap.Logger
}

// New creates a new pipeline. store may be nil, in which case Learn stops
// after its first step.
func New(cfg *config.Config, db *database.DB, store taskstore.Store, analyzer *patterns.Analyzer, processor *feedback.Processor, logger *zap.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		cfg:       cfg,
		db:        db,
		store:     store,
		analyzer:  analyzer,
		processor: processor,
		logger:    logger.Named("pipeline"),
	}
}

// Learn executes the full pipeline.
func (p *Pipeline) Learn(ctx context.Context) *Result {
	r := &Result{}

	// Step 1: Fetch history
	history, step := p.runFetch(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 2: Analyze patterns
	r.Steps = append(r.Steps, p.runAnalyze(ctx, history))

	// Step 3: Feedback trends
	r.Steps = append(r.Steps, p.runTrends(ctx))

	return r
}

// DryRun shows what Learn would work with without calling the task store.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}

	if p.store == nil {
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Summary: "[dry-run] No task store configured", Err: ErrNoTaskStore})
	} else {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Fetch",
			Summary: fmt.Sprintf("[dry-run] Would fetch %d days of task history", p.cfg.Learning.HistoryDays),
		})
	}

	stats, err := p.db.GetStats(ctx, p.analyzer.Threshold())
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Analyze", Err: err})
		return r
	}
	last := "never"
	if stats.LastPatternUpdate != nil {
		last = stats.LastPatternUpdate.Format("2006-01-02 15:04")
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Analyze",
		Summary: fmt.Sprintf("[dry-run] %d patterns stored (%d confident), last updated %s", stats.Patterns, stats.ConfidentPatterns, last),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Trends",
		Summary: fmt.Sprintf("[dry-run] %d feedback events, %d insights recorded", stats.FeedbackEvents, stats.Insights),
	})
	return r
}

func (p *Pipeline) runFetch(ctx context.Context) ([]taskstore.Task, StepResult) {
	p.logger.Info("Step 1/3: Fetching task history...")
	if p.store == nil {
		return nil, StepResult{Name: "Fetch", Err: ErrNoTaskStore}
	}

	window := time.Duration(p.cfg.Learning.HistoryDays) * 24 * time.Hour
	tasks, err := p.store.RecentTasks(ctx, window)
	if err != nil {
		return nil, StepResult{Name: "Fetch", Err: fmt.Errorf("fetching history: %w", err)}
	}

	// Open tasks stay in the history: completion rate and sample size
	// count every record.
	completed := 0
	for _, t := range tasks {
		if t.Completed() {
			completed++
		}
	}
	return tasks, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d tasks, %d completed with tracked time", len(tasks), completed),
	}
}

func (p *Pipeline) runAnalyze(ctx context.Context, history []taskstore.Task) StepResult {
	p.logger.Info("Step 2/3: Analyzing patterns...", zap.Int("tasks", len(history)))
	set, err := p.analyzer.Analyze(ctx, history)
	if err != nil {
		return StepResult{Name: "Analyze", Err: err}
	}

	confident := 0
	for _, pat := range set.Patterns() {
		if pat.Confidence() >= p.analyzer.Threshold() {
			confident++
		}
	}
	return StepResult{
		Name:    "Analyze",
		Summary: fmt.Sprintf("Updated %d patterns, %d above confidence %.2f", len(set.Patterns()), confident, p.analyzer.Threshold()),
	}
}

func (p *Pipeline) runTrends(ctx context.Context) StepResult {
	p.logger.Info("Step 3/3: Calculating feedback trends...")
	trends, err := p.processor.CalculateTrends(ctx)
	if err != nil {
		return StepResult{Name: "Trends", Err: err}
	}
	if trends == nil {
		return StepResult{Name: "Trends", Summary: "No feedback in the trend window"}
	}
	summary := fmt.Sprintf("%d feedback events, average rating %.2f (%s)", trends.TotalFeedbackCount, trends.AverageRating, trends.RatingTrend)
	if trends.ImprovementNeeded {
		summary += ", improvement needed"
	}
	return StepResult{Name: "Trends", Summary: summary}
}
