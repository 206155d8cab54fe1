package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/chronos/internal/taskstore"
)

func f(v float64) *float64 { return &v }

// done builds a completed task; completed is a local wall clock time.
func done(category string, est, actual float64, completed time.Time) taskstore.Task {
	t := taskstore.Task{Category: category, ActualTime: f(actual), CompletedDate: &completed}
	if est > 0 {
		t.EstimatedTime = f(est)
	}
	return t
}

// at returns a time the given number of days after Monday 2026-03-02.
func at(day, hour int) time.Time {
	return time.Date(2026, 3, 2+day, hour, 15, 0, 0, time.UTC)
}

func TestHourlyOmitsHoursBelowThreeSamples(t *testing.T) {
	history := []taskstore.Task{
		done("Development", 60, 60, at(0, 9)),
		done("Development", 60, 30, at(1, 9)),
		done("Development", 60, 120, at(2, 9)),
		done("Development", 60, 60, at(0, 14)),
		done("Development", 60, 60, at(1, 14)),
	}

	got := hourlyProductivity(history)
	require.Len(t, got, 1)
	assert.NotContains(t, got, "14")

	nine := got["9"]
	assert.Equal(t, 3, nine.SampleSize)
	assert.InDelta(t, (1.0+2.0+0.5)/3, nine.Efficiency, 1e-9)
	assert.InDelta(t, 0.3, nine.Confidence, 1e-9)
}

func TestHourlyConfidenceSaturates(t *testing.T) {
	var history []taskstore.Task
	for i := 0; i < 12; i++ {
		history = append(history, done("Development", 30, 30, at(i%5, 10)))
	}
	got := hourlyProductivity(history)
	assert.Equal(t, 1.0, got["10"].Confidence)
	assert.Equal(t, 12, got["10"].SampleSize)
}

func TestRecordsWithoutCompletionOrActualAreSkipped(t *testing.T) {
	completed := at(0, 9)
	history := []taskstore.Task{
		{Category: "Development", EstimatedTime: f(60), ActualTime: f(60)},
		{Category: "Development", EstimatedTime: f(60), CompletedDate: &completed},
		{Category: "Development", EstimatedTime: f(60), ActualTime: f(0), CompletedDate: &completed},
	}

	set := Compute(history)
	assert.Empty(t, set.Hourly)
	assert.Empty(t, set.Daily)
	assert.True(t, set.Energy.Empty())
	assert.Equal(t, 1, set.Estimation.SampleSize(), "estimation ignores completion date")
}

func TestEfficiencyWithoutEstimateIsOne(t *testing.T) {
	task := taskstore.Task{ActualTime: f(45)}
	assert.Equal(t, 1.0, efficiency(task))

	task.EstimatedTime = f(0)
	assert.Equal(t, 1.0, efficiency(task))

	task.EstimatedTime = f(30)
	task.ActualTime = f(0.5)
	assert.Equal(t, 30.0, efficiency(task), "denominator clamped to 1")
}

func TestDailyGroupsByWeekdayName(t *testing.T) {
	history := []taskstore.Task{
		done("A", 60, 60, at(0, 9)),
		done("A", 30, 60, at(7, 16)),
		done("A", 60, 60, at(1, 9)),
	}
	got := dailyProductivity(history)
	require.Len(t, got, 1)
	monday := got["Monday"]
	assert.Equal(t, 2, monday.SampleSize)
	assert.InDelta(t, 0.75, monday.Efficiency, 1e-9)
	assert.InDelta(t, 0.25, monday.Confidence, 1e-9)
}

func TestCategoryConfidenceIsCountOverFive(t *testing.T) {
	var history []taskstore.Task
	for n := 1; n <= 7; n++ {
		history = history[:0]
		for i := 0; i < n; i++ {
			// no completion date: category efficiency does not need one
			history = append(history, taskstore.Task{Category: "Research", EstimatedTime: f(60), ActualTime: f(float64(30 + 10*i))})
		}
		got := categoryEfficiency(history)
		if n < 2 {
			assert.Empty(t, got)
			continue
		}
		want := float64(n) / 5
		if want > 1 {
			want = 1
		}
		assert.Equal(t, want, got["Research"].Confidence, "n=%d", n)
	}
}

func TestCategoryTypicalDuration(t *testing.T) {
	history := []taskstore.Task{
		done("Meetings", 30, 40, at(0, 9)),
		done("Meetings", 30, 20, at(0, 10)),
		done("Development", 0, 90, at(0, 11)),
		{Category: "Meetings", EstimatedTime: f(30)},
	}
	got := categoryEfficiency(history)
	require.Contains(t, got, "Meetings")
	assert.NotContains(t, got, "Development")
	assert.Equal(t, 30.0, got["Meetings"].TypicalDuration)
	assert.InDelta(t, (0.75+1.5)/2, got["Meetings"].Efficiency, 1e-9)
}

func TestEstimationTendency(t *testing.T) {
	tests := []struct {
		name    string
		actuals []float64
		want    string
	}{
		{"mostly over", []float64{90, 90, 90, 30}, TendencyUnderestimate},
		{"mostly under", []float64{30, 30, 30, 90}, TendencyOverestimate},
		{"even", []float64{90, 30}, TendencyBalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var history []taskstore.Task
			for _, a := range tt.actuals {
				history = append(history, taskstore.Task{EstimatedTime: f(60), ActualTime: f(a)})
			}
			got := estimationAccuracy(history)
			assert.Equal(t, tt.want, got.Tendency)
			assert.Equal(t, len(tt.actuals), got.SampleSize())
			assert.InDelta(t, float64(len(tt.actuals))/20, got.Confidence(), 1e-9)
		})
	}
}

func TestEstimationAccuracyValues(t *testing.T) {
	history := []taskstore.Task{
		{EstimatedTime: f(60), ActualTime: f(120)},
		{EstimatedTime: f(60), ActualTime: f(30)},
	}
	got := estimationAccuracy(history)
	assert.InDelta(t, 1.25, got.OverallAccuracy, 1e-9)
	assert.Equal(t, 0.5, got.UnderestimationRate)
}

func TestEstimationEmpty(t *testing.T) {
	got := estimationAccuracy(nil)
	assert.Zero(t, got.SampleSize())
	assert.Equal(t, 0.5, got.Confidence())
}

func TestEnergyRanking(t *testing.T) {
	history := []taskstore.Task{
		// 8h: efficiency 2.0 -> energy capped at 2.0
		done("A", 120, 60, at(0, 8)), done("A", 120, 60, at(1, 8)),
		// 9h: efficiency 1.0 -> 1.2
		done("A", 60, 60, at(0, 9)), done("A", 60, 60, at(1, 9)),
		// 10h: efficiency 1.0 -> 1.2 (tie with 9h)
		done("A", 60, 60, at(0, 10)), done("A", 60, 60, at(1, 10)),
		// 15h: efficiency 0.5 -> 0.6
		done("A", 30, 60, at(0, 15)), done("A", 30, 60, at(1, 15)),
		// 17h: only one sample, ignored
		done("A", 30, 60, at(0, 17)),
	}

	got := energyCycles(history)
	assert.Equal(t, []string{"8", "9", "10"}, got.PeakEnergyHours)
	assert.Equal(t, []string{"10", "15"}, got.LowEnergyHours)
	require.Len(t, got.HourlyEnergy, 4)
	assert.InDelta(t, 2.0, got.HourlyEnergy["8"].EnergyLevel, 1e-9)
	assert.InDelta(t, 0.6, got.HourlyEnergy["15"].EnergyLevel, 1e-9)
	assert.Equal(t, 0.5, got.Confidence())
	assert.Equal(t, 2, got.SampleSize())
}

func TestEnergySingleHour(t *testing.T) {
	got := energyCycles([]taskstore.Task{done("A", 60, 60, at(0, 9)), done("A", 60, 60, at(1, 9))})
	assert.Equal(t, []string{"9"}, got.PeakEnergyHours)
	assert.Equal(t, []string{"9"}, got.LowEnergyHours)
}

func TestComputePerformance(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	history := []taskstore.Task{
		// recent and 30 minutes late
		done("A", 60, 90, now.Add(-24*time.Hour)),
		// recent and early
		done("A", 60, 30, now.Add(-48*time.Hour)),
		// outside the 7 day window
		done("A", 60, 60, now.Add(-10*24*time.Hour)),
		// not completed
		{Category: "A", EstimatedTime: f(60)},
	}

	p := ComputePerformance(history, now)
	assert.Equal(t, 4, p.SampleSize)
	assert.InDelta(t, 0.75, p.CompletionRate, 1e-9)
	assert.InDelta(t, (60.0/90+2.0)/2, p.Last7DaysEfficiency, 1e-9)
	assert.InDelta(t, 10.0, p.AvgDelayMinutes, 1e-9)

	empty := ComputePerformance(nil, now)
	assert.Zero(t, empty.CompletionRate)
	assert.Zero(t, empty.SampleSize)
}
