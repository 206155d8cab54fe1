package orchestrator

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/chronos/internal/suggest"
)

// TaskRequest is a task the caller wants scheduled.
type TaskRequest struct {
	Title         string `json:"title"`
	Category      string `json:"category"`
	Priority      string `json:"priority,omitempty"`
	Description   string `json:"description,omitempty"`
	EstimatedTime int    `json:"estimated_time"` // minutes
}

// ValidationError rejects a malformed TaskRequest. It is the only error
// Orchestrate returns.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task: %s %s", e.Field, e.Reason)
}

// Validate checks the request before any external call is made.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Category) == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if r.EstimatedTime < 0 {
		return &ValidationError{Field: "estimated_time", Reason: "must not be negative"}
	}
	return nil
}

func (r TaskRequest) task() suggest.Task {
	return suggest.Task{
		Title:         r.Title,
		Category:      r.Category,
		Priority:      r.Priority,
		Description:   r.Description,
		EstimatedTime: r.EstimatedTime,
	}
}
