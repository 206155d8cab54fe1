package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/llm"
	"github.com/TobiSchelling/chronos/internal/logging"
)

// Generator asks a language model for a suggestion and validates the reply.
type Generator struct {
	provider  llm.Provider
	maxTokens int
	logger    *zap.Logger
}

// NewGenerator creates the AI strategy. A nil provider makes every call
// fail with ErrUnavailable.
func NewGenerator(provider llm.Provider, cfg config.AI, logger *zap.Logger) *Generator {
	logger = logging.OrNop(logger)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Generator{provider: provider, maxTokens: maxTokens, logger: logger.Named("generator")}
}

func (g *Generator) Name() string { return SourceAI }

// Suggest prompts the model and converts its JSON reply into a Suggestion.
func (g *Generator) Suggest(ctx context.Context, req Request) (*Suggestion, error) {
	if g.provider == nil {
		return nil, fmt.Errorf("%w: no language model configured", ErrUnavailable)
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	reply, err := g.provider.Generate(ctx, prompt, g.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, g.provider.Name(), err)
	}
	g.logger.Debug("model replied", zap.String("provider", g.provider.Name()), zap.Int("bytes", len(reply)))

	raw, err := llm.ParseJSONResponse(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return parseSuggestion(raw, req)
}

// BuildPrompt renders the scheduling prompt for req.
func BuildPrompt(req Request) (string, error) {
	learned, err := json.MarshalIndent(req.Patterns, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding patterns: %w", err)
	}
	situation, err := json.MarshalIndent(req.Context, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding context: %w", err)
	}
	task, err := json.MarshalIndent(req.Task, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding task: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a personal schedule optimisation assistant.\n\n")
	b.WriteString("LEARNED USER PATTERNS:\n")
	b.Write(learned)
	b.WriteString("\n\nCURRENT CONTEXT:\n")
	b.Write(situation)
	b.WriteString("\n\nTASK TO SCHEDULE:\n")
	b.Write(task)
	b.WriteString(`

Using the historical patterns and the current context, propose the best slot.
Consider energy and productivity patterns, current workload, the kind of task
versus the ideal time of day, and past performance.

Return ONLY a valid JSON object shaped like:
{
  "scheduled_datetime": "2024-01-15T09:00:00",
  "confidence_score": 0.92,
  "reasoning": "Peak productivity hour for development",
  "duration_minutes": 120,
  "alternatives": [{"time": "14:00", "score": 0.78, "reason": "Second option"}],
  "context_factors": ["high_energy_morning", "no_meetings_before"]
}
`)
	return b.String(), nil
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseDatetime reads an ISO-8601 datetime. Values without a zone are taken
// in loc.
func parseDatetime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func parseSuggestion(raw map[string]any, req Request) (*Suggestion, error) {
	loc := time.Local
	if !req.Context.CurrentTime.IsZero() {
		loc = req.Context.CurrentTime.Location()
	}

	when, ok := raw["scheduled_datetime"].(string)
	if !ok || when == "" {
		return nil, malformed("missing scheduled_datetime")
	}
	at, ok := parseDatetime(when, loc)
	if !ok {
		return nil, malformed("scheduled_datetime %q is not ISO-8601", when)
	}

	conf, ok := raw["confidence_score"].(float64)
	if !ok {
		return nil, malformed("missing numeric confidence_score")
	}

	s := &Suggestion{
		TaskID:          NewTaskID(),
		ScheduledAt:     at,
		Confidence:      math.Max(0, math.Min(conf, 1)),
		DurationMinutes: durationFor(req.Task),
		Alternatives:    []Alternative{},
		ContextFactors:  []string{},
		Source:          SourceAI,
	}

	if v, present := raw["reasoning"]; present && v != nil {
		text, ok := v.(string)
		if !ok {
			return nil, malformed("reasoning is not a string")
		}
		s.Reasoning = text
	}

	if v, present := raw["duration_minutes"]; present && v != nil {
		n, ok := v.(float64)
		if !ok || n < 0 {
			return nil, malformed("duration_minutes is not a non-negative number")
		}
		if n > 0 {
			s.DurationMinutes = int(math.Round(n))
		}
	}

	if v, present := raw["alternatives"]; present && v != nil {
		items, ok := v.([]any)
		if !ok {
			return nil, malformed("alternatives is not a list")
		}
		for _, item := range items {
			if alt, ok := parseAlternative(item, at); ok {
				s.Alternatives = append(s.Alternatives, alt)
			}
		}
	}

	if v, present := raw["context_factors"]; present && v != nil {
		items, ok := v.([]any)
		if !ok {
			return nil, malformed("context_factors is not a list")
		}
		for _, item := range items {
			if f, ok := item.(string); ok && f != "" {
				s.ContextFactors = append(s.ContextFactors, f)
			}
		}
	}

	return s, nil
}

// parseAlternative accepts {"time"|"datetime", "score", "reason"} objects.
// A bare "HH:MM" time is placed on the day of the chosen slot. Items that
// cannot be read are dropped.
func parseAlternative(item any, chosen time.Time) (Alternative, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return Alternative{}, false
	}

	var when string
	for _, key := range []string{"datetime", "scheduled_datetime", "time"} {
		if v, ok := obj[key].(string); ok && v != "" {
			when = v
			break
		}
	}
	if when == "" {
		return Alternative{}, false
	}

	at, ok := parseDatetime(when, chosen.Location())
	if !ok {
		clock, err := time.Parse("15:04", strings.TrimSpace(when))
		if err != nil {
			return Alternative{}, false
		}
		y, m, d := chosen.Date()
		at = time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, chosen.Location())
	}

	alt := Alternative{At: at}
	if score, ok := obj["score"].(float64); ok {
		alt.Score = math.Max(0, math.Min(score, 1))
	}
	if reason, ok := obj["reason"].(string); ok {
		alt.Reason = reason
	}
	return alt, true
}
