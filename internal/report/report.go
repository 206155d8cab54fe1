// Package report renders what chronos has learned as a Markdown document.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/chronos/internal/feedback"
	"github.com/TobiSchelling/chronos/internal/patterns"
)

// Input is everything a report shows.
type Input struct {
	GeneratedAt time.Time
	Threshold   float64
	Patterns    []patterns.Stored
	Performance patterns.Performance
	Trends      *feedback.Trends
	Insights    []feedback.Insight
}

// Gather reads the report input from the analyzer and feedback processor.
func Gather(ctx context.Context, a *patterns.Analyzer, p *feedback.Processor, insightDays int, now time.Time) (Input, error) {
	in := Input{GeneratedAt: now, Threshold: a.Threshold()}

	var err error
	if in.Patterns, err = a.CurrentPatternsAbove(ctx, 0); err != nil {
		return in, err
	}
	if in.Performance, err = a.RecentPerformance(ctx); err != nil {
		return in, err
	}
	if in.Trends, err = p.CalculateTrends(ctx); err != nil {
		return in, err
	}
	if in.Insights, err = p.RecentInsights(ctx, insightDays); err != nil {
		return in, err
	}
	return in, nil
}

// Build renders in as Markdown.
func Build(in Input) string {
	sections := []string{
		fmt.Sprintf("# Chronos learning report\n\nGenerated %s. Patterns at or above confidence %.2f are used for scheduling.",
			in.GeneratedAt.Format("2006-01-02 15:04"), in.Threshold),
		patternSection(in.Patterns, in.Threshold),
		performanceSection(in.Performance),
		trendSection(in.Trends),
		insightSection(in.Insights),
	}
	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML converts a Markdown report to an HTML fragment.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func patternSection(stored []patterns.Stored, threshold float64) string {
	if len(stored) == 0 {
		return "## Patterns\n\nNo patterns learned yet. Run `chronos learn` after completing some tasks."
	}

	sorted := append([]patterns.Stored(nil), stored...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })

	var b strings.Builder
	b.WriteString("## Patterns\n\n")
	b.WriteString("| Pattern | Confidence | Samples | Used | Summary |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range sorted {
		used := "no"
		if s.Confidence >= threshold {
			used = "yes"
		}
		fmt.Fprintf(&b, "| %s | %.2f | %d | %s | %s |\n", s.Type, s.Confidence, s.SampleSize, used, describe(s.Data))
	}
	return strings.TrimRight(b.String(), "\n")
}

// describe summarises a pattern in one line.
func describe(p patterns.Pattern) string {
	switch v := p.(type) {
	case patterns.HourlyProductivity:
		best, ok := bestBucket(v)
		if !ok {
			return "not enough data"
		}
		return fmt.Sprintf("most efficient at %s:00 (%.2f)", best, v[best].Efficiency)
	case patterns.DailyProductivity:
		best, ok := bestBucket(v)
		if !ok {
			return "not enough data"
		}
		return fmt.Sprintf("most efficient on %s (%.2f)", best, v[best].Efficiency)
	case patterns.CategoryEfficiency:
		if len(v) == 0 {
			return "not enough data"
		}
		cats := make([]string, 0, len(v))
		for c := range v {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		parts := make([]string, len(cats))
		for i, c := range cats {
			parts[i] = fmt.Sprintf("%s %.0f min", c, v[c].TypicalDuration)
		}
		return "typical durations: " + strings.Join(parts, ", ")
	case patterns.EstimationAccuracy:
		if v.Samples == 0 {
			return "not enough data"
		}
		return fmt.Sprintf("%s (accuracy %.2f, underestimated %.0f%%)", v.Tendency, v.OverallAccuracy, v.UnderestimationRate*100)
	case patterns.EnergyCycles:
		if v.Empty() {
			return "not enough data"
		}
		return fmt.Sprintf("peak hours %s, low hours %s", hours(v.PeakEnergyHours), hours(v.LowEnergyHours))
	}
	return ""
}

// bestBucket returns the key with the highest efficiency, ties broken by key.
func bestBucket(m map[string]patterns.Bucket) (string, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := ""
	for _, k := range keys {
		if best == "" || m[k].Efficiency > m[best].Efficiency {
			best = k
		}
	}
	return best, best != ""
}

func hours(hs []string) string {
	out := make([]string, len(hs))
	for i, h := range hs {
		if n, err := strconv.Atoi(h); err == nil {
			out[i] = fmt.Sprintf("%02d:00", n)
		} else {
			out[i] = h
		}
	}
	return strings.Join(out, ", ")
}

func performanceSection(p patterns.Performance) string {
	if p.RecordedAt == nil {
		return "## Recent performance\n\nNo performance snapshot recorded yet."
	}
	return fmt.Sprintf("## Recent performance\n\n"+
		"- Efficiency over the last 7 days: %.2f\n"+
		"- Completion rate: %.0f%%\n"+
		"- Average delay: %.0f min\n"+
		"- Tasks considered: %d (as of %s)",
		p.Last7DaysEfficiency, p.CompletionRate*100, p.AvgDelayMinutes, p.SampleSize,
		p.RecordedAt.Format("2006-01-02 15:04"))
}

func trendSection(t *feedback.Trends) string {
	if t == nil {
		return "## Feedback trends\n\nNo feedback received in the trend window."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Feedback trends\n\n- Feedback events: %d\n- Average rating: %.2f (%s)\n",
		t.TotalFeedbackCount, t.AverageRating, t.RatingTrend)
	if t.ImprovementNeeded {
		b.WriteString("- **Suggestions need improvement**\n")
	}
	if len(t.CommonActions) > 0 {
		actions := make([]string, 0, len(t.CommonActions))
		for a := range t.CommonActions {
			actions = append(actions, a)
		}
		sort.Slice(actions, func(i, j int) bool {
			if t.CommonActions[actions[i]] != t.CommonActions[actions[j]] {
				return t.CommonActions[actions[i]] > t.CommonActions[actions[j]]
			}
			return actions[i] < actions[j]
		})
		parts := make([]string, len(actions))
		for i, a := range actions {
			parts[i] = fmt.Sprintf("%s (%d)", a, t.CommonActions[a])
		}
		fmt.Fprintf(&b, "- Common actions: %s\n", strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func insightSection(insights []feedback.Insight) string {
	if len(insights) == 0 {
		return "## Recent insights\n\nNo insights recorded."
	}

	counts := make(map[string]int)
	var types []string
	for _, in := range insights {
		if counts[in.Type] == 0 {
			types = append(types, in.Type)
		}
		counts[in.Type]++
	}

	var b strings.Builder
	b.WriteString("## Recent insights\n\n")
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, counts[t])
	}
	return strings.TrimRight(b.String(), "\n")
}
