// Package taskstore reads and writes tasks in the external task store.
package taskstore

import (
	"context"
	"time"
)

// Task is a task record as held by the external store. The scheduling core
// only reads it.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Category      string     `json:"category,omitempty"`
	Priority      string     `json:"priority,omitempty"`
	Status        string     `json:"status,omitempty"`
	EstimatedTime *float64   `json:"estimated_time,omitempty"` // minutes
	ActualTime    *float64   `json:"actual_time,omitempty"`    // minutes
	CreatedDate   *time.Time `json:"created_date,omitempty"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_time,omitempty"`
	Description   string     `json:"description,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

// Completed reports whether the task has both a completion time and a
// positive actual duration.
func (t Task) Completed() bool {
	return t.CompletedDate != nil && t.ActualTime != nil && *t.ActualTime > 0
}

// NewTask is a task to create together with its scheduling decision.
type NewTask struct {
	Title         string
	Category      string
	Priority      string
	Description   string
	EstimatedTime int
	ScheduledAt   time.Time
	Confidence    float64
	Reasoning     string
}

// Fields are the updatable properties of an existing task. Nil fields are
// left unchanged.
type Fields struct {
	Status     *string
	ActualTime *float64
	Rating     *int
}

// Store is the external task store contract.
type Store interface {
	// RecentTasks returns tasks created within the trailing window.
	RecentTasks(ctx context.Context, window time.Duration) ([]Task, error)
	// Create stores a new task and returns its external ID.
	Create(ctx context.Context, task NewTask) (string, error)
	// Update changes fields on an existing task.
	Update(ctx context.Context, id string, fields Fields) error
}
