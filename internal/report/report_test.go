package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/database"
	"github.com/TobiSchelling/chronos/internal/feedback"
	"github.com/TobiSchelling/chronos/internal/patterns"
)

var generated = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestBuildEmpty(t *testing.T) {
	out := Build(Input{GeneratedAt: generated, Threshold: 0.6})

	assert.True(t, strings.HasPrefix(out, "# Chronos learning report"))
	assert.Contains(t, out, "Generated 2026-03-14 18:00")
	assert.Contains(t, out, "No patterns learned yet")
	assert.Contains(t, out, "No performance snapshot recorded yet.")
	assert.Contains(t, out, "No feedback received in the trend window.")
	assert.Contains(t, out, "No insights recorded.")
}

func TestBuild(t *testing.T) {
	recorded := generated.Add(-time.Hour)
	in := Input{
		GeneratedAt: generated,
		Threshold:   0.6,
		Patterns: []patterns.Stored{
			{
				Type:       patterns.TypeHourly,
				Data:       patterns.HourlyProductivity{"9": {Efficiency: 1.2, Confidence: 0.8, SampleSize: 8}, "15": {Efficiency: 0.9, Confidence: 0.8, SampleSize: 8}},
				Confidence: 0.8,
				SampleSize: 8,
			},
			{
				Type:       patterns.TypeEnergy,
				Data:       patterns.EnergyCycles{},
				Confidence: 0.5,
			},
		},
		Performance: patterns.Performance{Last7DaysEfficiency: 1.05, CompletionRate: 0.75, AvgDelayMinutes: 12, SampleSize: 20, RecordedAt: &recorded},
		Trends: &feedback.Trends{
			AverageRating:      2.5,
			RatingTrend:        feedback.TrendDeclining,
			CommonActions:      map[string]int{"moved_later": 3, "accepted": 1},
			TotalFeedbackCount: 4,
			ImprovementNeeded:  true,
		},
		Insights: []feedback.Insight{
			{Type: feedback.NegativeFeedback},
			{Type: feedback.TimePreferenceLater},
			{Type: feedback.NegativeFeedback},
		},
	}

	out := Build(in)
	assert.Contains(t, out, "| hourly_productivity | 0.80 | 8 | yes | most efficient at 9:00 (1.20) |")
	assert.Contains(t, out, "| energy_cycles | 0.50 | 0 | no | not enough data |")
	assert.Contains(t, out, "Efficiency over the last 7 days: 1.05")
	assert.Contains(t, out, "Completion rate: 75%")
	assert.Contains(t, out, "Average rating: 2.50 (declining)")
	assert.Contains(t, out, "**Suggestions need improvement**")
	assert.Contains(t, out, "Common actions: moved_later (3), accepted (1)")
	assert.Contains(t, out, "- "+feedback.NegativeFeedback+": 2")

	// energy_cycles sorts before hourly_productivity.
	assert.Less(t, strings.Index(out, "energy_cycles"), strings.Index(out, "hourly_productivity"))
}

func TestHTML(t *testing.T) {
	html, err := HTML(Build(Input{
		GeneratedAt: generated,
		Threshold:   0.6,
		Patterns:    []patterns.Stored{{Type: patterns.TypeEstimation, Data: patterns.EstimationAccuracy{}, Confidence: 0.5}},
	}))
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Chronos learning report</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>estimation_accuracy</td>")
}

func TestGather(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	a := patterns.NewAnalyzer(db, cfg.Learning, nil, nil)
	p := feedback.NewProcessor(db, cfg.Learning, nil, nil)
	ctx := context.Background()

	_, err = a.Analyze(ctx, nil)
	require.NoError(t, err)
	two := 2
	_, err = p.Process(ctx, feedback.Event{TaskID: "t1", Rating: &two})
	require.NoError(t, err)

	in, err := Gather(ctx, a, p, 7, time.Now())
	require.NoError(t, err)
	assert.Len(t, in.Patterns, len(patterns.AllTypes))
	assert.NotNil(t, in.Performance.RecordedAt)
	require.NotNil(t, in.Trends)
	assert.Equal(t, 1, in.Trends.TotalFeedbackCount)
	require.Len(t, in.Insights, 1)
	assert.Equal(t, feedback.NegativeFeedback, in.Insights[0].Type)
}
