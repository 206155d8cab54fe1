package feedback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/database"
)

func newTestProcessor(t *testing.T) (*Processor, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProcessor(db, config.Learning{TrendWindowDays: 30}, nil, nil), db
}

func rating(n int) *int { return &n }

func insightTypes(insights []Insight) []string {
	types := make([]string, len(insights))
	for i, in := range insights {
		types[i] = in.Type
	}
	return types
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  []string
	}{
		{"neutral", Event{Rating: rating(3)}, nil},
		{"positive", Event{Rating: rating(4)}, []string{PositiveValidation}},
		{"negative", Event{Rating: rating(2)}, []string{NegativeFeedback}},
		{"moved later", Event{Rating: rating(3), UserAction: ActionMovedLater}, []string{TimePreferenceLater}},
		{"too late english", Event{Rating: rating(3), Comment: "That was Too Late for me"}, []string{TimingTooLate}},
		{"both comments", Event{Rating: rating(3), Comment: "too early and too late"}, []string{TimingTooEarly}},
		{
			"all groups",
			Event{Rating: rating(1), UserAction: ActionMovedEarlier, Comment: "muito tarde"},
			[]string{NegativeFeedback, TimePreferenceEarlier, TimingTooLate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.event)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, insightTypes(got))
		})
	}
}

func TestClassifyConfidenceAndImpact(t *testing.T) {
	got := Classify(Event{Rating: rating(1), UserAction: ActionMovedLater, Comment: "muito cedo"})
	require.Len(t, got, 3)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, ImpactHigh, got[0].Impact)
	assert.Equal(t, 0.7, got[1].Confidence)
	assert.Equal(t, ImpactMedium, got[1].Impact)
	assert.Equal(t, 0.8, got[2].Confidence)
	assert.Equal(t, ImpactHigh, got[2].Impact)
	assert.JSONEq(t, `{"comment":"muito cedo"}`, string(got[2].Data))
}

func TestPatternUpdatesLastWriteWins(t *testing.T) {
	updates := PatternUpdates([]Insight{
		{Type: TimePreferenceEarlier},
		{Type: TimePreferenceLater},
		{Type: TimingTooEarly},
	})
	assert.Equal(t, map[string]float64{UpdateTimeAdjustment: 30}, updates)
}

func TestProcessPositiveMovedEarlier(t *testing.T) {
	p, db := newTestProcessor(t)
	ctx := context.Background()

	res, err := p.Process(ctx, Event{TaskID: "task_1", Rating: rating(5), UserAction: ActionMovedEarlier, SuggestedTime: "09:00"})
	require.NoError(t, err)

	assert.NotZero(t, res.FeedbackID)
	assert.Equal(t, 2, res.InsightsGenerated)
	assert.ElementsMatch(t, []string{PositiveValidation, TimePreferenceEarlier}, res.InsightTypes)
	assert.Equal(t, map[string]float64{UpdateTimeAdjustment: -30, UpdateConfidenceBoost: 0.05}, res.PatternUpdates)
	assert.True(t, res.LearningApplied)

	stats, err := db.GetStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FeedbackEvents)
	assert.Equal(t, 2, stats.Insights)
}

func TestProcessNegativeTooEarly(t *testing.T) {
	p, _ := newTestProcessor(t)

	res, err := p.Process(context.Background(), Event{TaskID: "task_2", Rating: rating(1), Comment: "muito cedo"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{NegativeFeedback, TimingTooEarly}, res.InsightTypes)
	assert.Equal(t, map[string]float64{UpdateConfidencePenalty: -0.1}, res.PatternUpdates)
	assert.NotContains(t, res.PatternUpdates, UpdateTimeAdjustment)
}

func TestProcessRating(t *testing.T) {
	p, db := newTestProcessor(t)
	ctx := context.Background()

	res, err := p.Process(ctx, Event{TaskID: "task_3"})
	require.NoError(t, err)
	assert.Zero(t, res.InsightsGenerated, "missing rating defaults to neutral")
	assert.Empty(t, res.PatternUpdates)

	events, err := db.ListFeedbackSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Rating)

	_, err = p.Process(ctx, Event{TaskID: "task_4", Rating: rating(6)})
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = p.Process(ctx, Event{TaskID: "task_4", Rating: rating(-1)})
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = p.Process(ctx, Event{TaskID: "task_4", Rating: rating(0)})
	assert.ErrorIs(t, err, ErrInvalidRating, "an explicit zero is not a missing rating")

	events, err = db.ListFeedbackSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1, "rejected events are not stored")
}

func TestProcessReportsPersistenceFailure(t *testing.T) {
	p, db := newTestProcessor(t)
	require.NoError(t, db.Close())

	res, err := p.Process(context.Background(), Event{TaskID: "task_5", Rating: rating(5)})
	require.NoError(t, err)
	assert.False(t, res.LearningApplied)
	assert.Zero(t, res.FeedbackID)
	assert.Equal(t, 1, res.InsightsGenerated)
	assert.Equal(t, map[string]float64{UpdateConfidenceBoost: 0.05}, res.PatternUpdates)
}

func TestCalculateTrendsEmptyWindow(t *testing.T) {
	p, db := newTestProcessor(t)
	ctx := context.Background()

	trends, err := p.CalculateTrends(ctx)
	require.NoError(t, err)
	assert.Nil(t, trends)

	_, err = db.InsertFeedback(ctx, database.FeedbackRow{TaskID: "old", Rating: 1, Timestamp: time.Now().Add(-45 * 24 * time.Hour)})
	require.NoError(t, err)
	trends, err = p.CalculateTrends(ctx)
	require.NoError(t, err)
	assert.Nil(t, trends, "feedback outside the window is ignored")
}

func TestCalculateTrends(t *testing.T) {
	p, db := newTestProcessor(t)
	ctx := context.Background()
	base := time.Now().Add(-20 * 24 * time.Hour)

	// Twelve ratings; only the last ten drive the trend: 2,2,2,2,2 then 4,4,4,4,4.
	ratings := []int{5, 5, 2, 2, 2, 2, 2, 4, 4, 4, 4, 4}
	for i, r := range ratings {
		row := database.FeedbackRow{TaskID: "t", Rating: r, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if i%3 == 0 {
			row.UserAction = ActionMovedEarlier
		}
		_, err := db.InsertFeedback(ctx, row)
		require.NoError(t, err)
	}

	trends, err := p.CalculateTrends(ctx)
	require.NoError(t, err)
	require.NotNil(t, trends)

	assert.Equal(t, 12, trends.TotalFeedbackCount)
	assert.InDelta(t, 40.0/12, trends.AverageRating, 1e-9)
	assert.Equal(t, TrendImproving, trends.RatingTrend)
	assert.Equal(t, map[string]int{ActionMovedEarlier: 4}, trends.CommonActions)
	assert.True(t, trends.ImprovementNeeded)
}

func TestRatingTrend(t *testing.T) {
	assert.Equal(t, TrendStable, ratingTrend(nil))
	assert.Equal(t, TrendStable, ratingTrend([]float64{5}))
	assert.Equal(t, TrendDeclining, ratingTrend([]float64{5, 5, 4, 1, 1}))
	assert.Equal(t, TrendStable, ratingTrend([]float64{3, 3, 3, 3}))
	// odd length puts the middle value in the second half
	assert.Equal(t, TrendImproving, ratingTrend([]float64{3, 4, 4}))
}

func TestRecentInsights(t *testing.T) {
	p, db := newTestProcessor(t)
	ctx := context.Background()

	_, err := p.Process(ctx, Event{TaskID: "task_1", Rating: rating(5)})
	require.NoError(t, err)
	_, err = db.InsertInsight(ctx, database.InsightRow{
		InsightType: TimingTooLate, InsightData: `{}`, ConfidenceScore: 0.8, ImpactLevel: ImpactHigh,
		CreatedAt: time.Now().Add(-10 * 24 * time.Hour),
	})
	require.NoError(t, err)

	week, err := p.RecentInsights(ctx, 7)
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, PositiveValidation, week[0].Type)
	require.NotNil(t, week[0].FeedbackID)
	assert.Contains(t, string(week[0].Data), `"task_id":"task_1"`)

	month, err := p.RecentInsights(ctx, 30)
	require.NoError(t, err)
	assert.Len(t, month, 2)
}
