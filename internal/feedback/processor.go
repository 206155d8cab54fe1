// Package feedback records user feedback on suggestions and turns it into
// learning insights.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/database"
	"github.com/TobiSchelling/chronos/internal/logging"
	"github.com/TobiSchelling/chronos/internal/metrics"
)

// ErrInvalidRating rejects ratings outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// defaultRating is used when an event carries no rating.
const defaultRating = 3

// Event is one piece of user feedback on a suggestion.
type Event struct {
	TaskID              string         `json:"task_id"`
	SuggestionID        string         `json:"suggestion_id,omitempty"`
	Rating              *int           `json:"rating,omitempty"`
	Comment             string         `json:"comment,omitempty"`
	ActualExecutionTime string         `json:"actual_execution_time,omitempty"`
	ProductivityLevel   string         `json:"productivity_level,omitempty"`
	UserAction          string         `json:"user_action,omitempty"`
	SuggestedTime       string         `json:"suggested_time,omitempty"`
	Context             map[string]any `json:"context,omitempty"`
}

// RatingOrDefault returns the rating, or 3 when the event carries none.
func (e Event) RatingOrDefault() int {
	if e.Rating == nil {
		return defaultRating
	}
	return *e.Rating
}

// Insight is a rule-derived observation from one feedback event.
type Insight struct {
	ID         int64           `json:"id,omitempty"`
	FeedbackID *int64          `json:"feedback_id,omitempty"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	Confidence float64         `json:"confidence"`
	Impact     string          `json:"impact"`
	CreatedAt  *time.Time      `json:"created_at,omitempty"`
}

// Result reports what processing one event produced.
type Result struct {
	FeedbackID        int64              `json:"feedback_id"`
	InsightsGenerated int                `json:"insights_generated"`
	InsightTypes      []string           `json:"insight_types"`
	PatternUpdates    map[string]float64 `json:"pattern_updates"`
	LearningApplied   bool               `json:"learning_applied"`
}

// Trends aggregates feedback over the trailing window.
type Trends struct {
	AverageRating      float64        `json:"average_rating"`
	RatingTrend        string         `json:"rating_trend"`
	CommonActions      map[string]int `json:"common_actions"`
	TotalFeedbackCount int            `json:"total_feedback_count"`
	ImprovementNeeded  bool           `json:"improvement_needed"`
}

// Rating trends.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

const (
	trendSamples   = 10
	trendThreshold = 0.3
	improvementBar = 3.5
)

// Processor stores feedback events and the insights derived from them.
type Processor struct {
	db      *database.DB
	window  time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewProcessor creates a Processor. Trends cover the configured trend window.
func NewProcessor(db *database.DB, cfg config.Learning, logger *zap.Logger, m *metrics.Metrics) *Processor {
	logger = logging.OrNop(logger)
	days := cfg.TrendWindowDays
	if days <= 0 {
		days = 30
	}
	return &Processor{
		db:      db,
		window:  time.Duration(days) * 24 * time.Hour,
		logger:  logger.Named("feedback"),
		metrics: m,
		now:     time.Now,
	}
}

// Process records the event, classifies it and stores the resulting
// insights. Only an invalid rating is returned as an error; write failures
// are logged and reported through LearningApplied.
func (p *Processor) Process(ctx context.Context, e Event) (*Result, error) {
	rating := e.RatingOrDefault()
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidRating, rating)
	}
	e.Rating = &rating

	applied := true
	now := p.now()

	feedbackID, err := p.storeEvent(ctx, e, now)
	if err != nil {
		p.logger.Error("storing feedback failed", zap.String("task_id", e.TaskID), zap.Error(err))
		p.metrics.RecordPersistenceFailure("feedback")
		applied = false
	}

	insights := Classify(e)
	updates := PatternUpdates(insights)

	types := make([]string, len(insights))
	for i, in := range insights {
		types[i] = in.Type
		row := database.InsightRow{
			InsightType:     in.Type,
			InsightData:     string(in.Data),
			ConfidenceScore: in.Confidence,
			ImpactLevel:     in.Impact,
			CreatedAt:       now,
		}
		if feedbackID != 0 {
			row.FeedbackID = &feedbackID
		}
		if _, err := p.db.InsertInsight(ctx, row); err != nil {
			p.logger.Error("storing insight failed", zap.String("insight_type", in.Type), zap.Error(err))
			p.metrics.RecordPersistenceFailure("insights")
			applied = false
		}
	}

	p.metrics.RecordFeedback(types)
	p.logger.Info("processed feedback",
		zap.String("task_id", e.TaskID),
		zap.Int("rating", rating),
		zap.Strings("insights", types),
		zap.Bool("learning_applied", applied),
	)

	return &Result{
		FeedbackID:        feedbackID,
		InsightsGenerated: len(insights),
		InsightTypes:      types,
		PatternUpdates:    updates,
		LearningApplied:   applied,
	}, nil
}

func (p *Processor) storeEvent(ctx context.Context, e Event, now time.Time) (int64, error) {
	vctx := e.Context
	if vctx == nil {
		vctx = map[string]any{}
	}
	contextJSON, err := json.Marshal(vctx)
	if err != nil {
		return 0, fmt.Errorf("encoding feedback context: %w", err)
	}
	return p.db.InsertFeedback(ctx, database.FeedbackRow{
		TaskID:              e.TaskID,
		SuggestionID:        e.SuggestionID,
		Rating:              e.RatingOrDefault(),
		Comment:             e.Comment,
		ActualExecutionTime: e.ActualExecutionTime,
		ProductivityLevel:   e.ProductivityLevel,
		UserAction:          e.UserAction,
		ContextData:         string(contextJSON),
		Timestamp:           now,
	})
}

// CalculateTrends aggregates feedback in the trailing window. It returns nil
// when the window holds no feedback.
func (p *Processor) CalculateTrends(ctx context.Context) (*Trends, error) {
	events, err := p.db.ListFeedbackSince(ctx, p.now().Add(-p.window))
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	ratings := make([]float64, len(events))
	actions := make(map[string]int)
	for i, ev := range events {
		ratings[i] = float64(ev.Rating)
		if ev.UserAction != "" {
			actions[ev.UserAction]++
		}
	}

	avg := mean(ratings)
	return &Trends{
		AverageRating:      avg,
		RatingTrend:        ratingTrend(ratings[max(len(ratings)-trendSamples, 0):]),
		CommonActions:      actions,
		TotalFeedbackCount: len(events),
		ImprovementNeeded:  avg < improvementBar,
	}, nil
}

// ratingTrend compares the mean of the second half of values with the first.
func ratingTrend(values []float64) string {
	if len(values) < 2 {
		return TrendStable
	}
	half := len(values) / 2
	diff := mean(values[half:]) - mean(values[:half])
	switch {
	case diff > trendThreshold:
		return TrendImproving
	case diff < -trendThreshold:
		return TrendDeclining
	}
	return TrendStable
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// RecentInsights returns insights from the last days days, newest first.
func (p *Processor) RecentInsights(ctx context.Context, days int) ([]Insight, error) {
	rows, err := p.db.ListInsightsSince(ctx, p.now().Add(-time.Duration(days)*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("listing insights: %w", err)
	}

	insights := make([]Insight, 0, len(rows))
	for _, row := range rows {
		created := row.CreatedAt
		data := json.RawMessage(row.InsightData)
		if !json.Valid(data) {
			data = json.RawMessage("null")
		}
		insights = append(insights, Insight{
			ID:         row.ID,
			FeedbackID: row.FeedbackID,
			Type:       row.InsightType,
			Data:       data,
			Confidence: row.ConfidenceScore,
			Impact:     row.ImpactLevel,
			CreatedAt:  &created,
		})
	}
	return insights, nil
}
