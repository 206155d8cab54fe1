// Package suggest produces schedule suggestions. A Strategy either returns a
// fully populated Suggestion or an error; callers fall through to the next
// strategy on error.
package suggest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

// Suggestion sources.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Sentinel errors classifying strategy failures.
var (
	ErrUnavailable = errors.New("suggestion backend unavailable")
	ErrMalformed   = errors.New("malformed suggestion")
)

// Task is the task to be scheduled.
type Task struct {
	Title         string `json:"title"`
	Category      string `json:"category"`
	Priority      string `json:"priority,omitempty"`
	Description   string `json:"description,omitempty"`
	EstimatedTime int    `json:"estimated_time"` // minutes
}

// Workload is the caller's current load.
type Workload struct {
	Status   string  `json:"status"`
	Capacity float64 `json:"capacity"`
}

// Context is everything known about the user's situation at request time.
type Context struct {
	CurrentTime       time.Time             `json:"current_time"`
	ExistingTasks     []taskstore.Task      `json:"existing_tasks"`
	RecentPerformance patterns.Performance  `json:"recent_performance"`
	EnergyPatterns    patterns.EnergyCycles `json:"energy_patterns"`
	WorkloadStatus    Workload              `json:"workload_status"`
}

// Request carries the inputs of one suggestion.
type Request struct {
	Task     Task
	Patterns []patterns.Stored
	Context  Context
}

// Alternative is a secondary slot offered with a suggestion.
type Alternative struct {
	At     time.Time `json:"datetime"`
	Score  float64   `json:"score,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Suggestion is a proposed slot for a task.
type Suggestion struct {
	TaskID          string        `json:"task_id"`
	ScheduledAt     time.Time     `json:"scheduled_datetime"`
	Confidence      float64       `json:"confidence_score"`
	Reasoning       string        `json:"reasoning"`
	DurationMinutes int           `json:"duration_minutes"`
	Alternatives    []Alternative `json:"alternatives"`
	ContextFactors  []string      `json:"context_factors"`
	Source          string        `json:"source"`
}

// Strategy produces a suggestion or fails.
type Strategy interface {
	Name() string
	Suggest(ctx context.Context, req Request) (*Suggestion, error)
}

// ErrorClass names the failure class of a strategy error for logs and metrics.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	}
	return "error"
}

// NewTaskID returns an opaque "task_" prefixed identifier.
func NewTaskID() string {
	return "task_" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// durationFor is the task estimate, or an hour when none was given.
func durationFor(t Task) int {
	if t.EstimatedTime > 0 {
		return t.EstimatedTime
	}
	return 60
}
