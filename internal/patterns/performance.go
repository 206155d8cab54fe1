package patterns

import (
	"math"
	"time"

	"github.com/TobiSchelling/chronos/internal/taskstore"
)

const recentWindow = 7 * 24 * time.Hour

// Performance summarises how the user has been doing lately.
type Performance struct {
	Last7DaysEfficiency float64    `json:"last_7_days_efficiency"`
	CompletionRate      float64    `json:"completion_rate"`
	AvgDelayMinutes     float64    `json:"avg_delay_minutes"`
	SampleSize          int        `json:"sample_size"`
	RecordedAt          *time.Time `json:"recorded_at,omitempty"`
}

// ComputePerformance summarises history as of now. Delay is the mean overrun
// of actual over estimated time across completed tasks with an estimate;
// tasks that finished early count as zero delay.
func ComputePerformance(history []taskstore.Task, now time.Time) Performance {
	p := Performance{SampleSize: len(history)}
	if len(history) == 0 {
		return p
	}

	var recent []float64
	var delays []float64
	completed := 0
	cutoff := now.Add(-recentWindow)
	for _, t := range history {
		if !t.Completed() {
			continue
		}
		completed++
		if !t.CompletedDate.Before(cutoff) && !t.CompletedDate.After(now) {
			recent = append(recent, efficiency(t))
		}
		if t.EstimatedTime != nil && *t.EstimatedTime > 0 {
			delays = append(delays, math.Max(*t.ActualTime-*t.EstimatedTime, 0))
		}
	}

	p.CompletionRate = float64(completed) / float64(len(history))
	if len(recent) > 0 {
		p.Last7DaysEfficiency = mean(recent)
	}
	if len(delays) > 0 {
		p.AvgDelayMinutes = mean(delays)
	}
	return p
}
