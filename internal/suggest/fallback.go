package suggest

import (
	"context"
	"fmt"
	"time"
)

const fallbackConfidence = 0.6

type rule struct {
	name   string
	offset time.Duration
	detail string
}

var (
	ruleDefault     = rule{"default_offset", time.Hour, "standard slot one hour ahead"}
	ruleDevelopment = rule{"category_development", time.Hour, "Development works best early, in the next hour"}
	ruleMeetings    = rule{"category_meetings", 3 * time.Hour, "Meetings fit best around the middle of the day"}
	ruleUrgent      = rule{"priority_urgent", 30 * time.Minute, "urgent priority needs prompt action"}
)

// selectRule picks the offset rule for a task. Category picks the base
// rule and an urgent priority overrides it.
func selectRule(t Task) rule {
	r := ruleDefault
	switch t.Category {
	case "Development":
		r = ruleDevelopment
	case "Meetings":
		r = ruleMeetings
	}
	if t.Priority == "Urgente" {
		r = ruleUrgent
	}
	return r
}

// Fallback is the deterministic local strategy. It performs no I/O and
// never fails.
type Fallback struct{}

func (Fallback) Name() string { return SourceFallback }

func (f Fallback) Suggest(_ context.Context, req Request) (*Suggestion, error) {
	return f.Build(req), nil
}

// Build returns the rule-based suggestion for req, relative to the request's
// current time.
func (Fallback) Build(req Request) *Suggestion {
	now := req.Context.CurrentTime
	if now.IsZero() {
		now = time.Now()
	}
	r := selectRule(req.Task)
	at := now.Add(r.offset)

	category := req.Task.Category
	if category == "" {
		category = "uncategorised"
	}

	return &Suggestion{
		TaskID:      NewTaskID(),
		ScheduledAt: at,
		Confidence:  fallbackConfidence,
		Reasoning: fmt.Sprintf("Local rule %s (%s task): %s. Scheduled for %s",
			r.name, category, r.detail, at.Format("15:04")),
		DurationMinutes: durationFor(req.Task),
		Alternatives: []Alternative{
			{At: at.Add(time.Hour), Reason: "Alternative 1: " + at.Add(time.Hour).Format("15:04")},
			{At: at.Add(2 * time.Hour), Reason: "Alternative 2: " + at.Add(2*time.Hour).Format("15:04")},
		},
		ContextFactors: []string{"local_rule", r.name},
		Source:         SourceFallback,
	}
}
