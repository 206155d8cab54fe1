package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/chronos/internal/feedback"
	"github.com/TobiSchelling/chronos/internal/orchestrator"
	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/pipeline"
	"github.com/TobiSchelling/chronos/internal/report"
)

func init() {
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(reportCmd)
}

// --- learn command ---

var dryRun bool

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn patterns from task history: fetch -> analyze -> trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		pipe := pipeline.New(cfg, a.db, a.store, a.analyzer, a.processor, logger)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(cmd.Context())
		} else {
			result = pipe.Learn(cmd.Context())
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/3: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !dryRun && !result.Failed() {
			fmt.Println("\nLearning complete! Run 'chronos patterns' to see what was learned.")
		}
		return nil
	},
}

func init() {
	learnCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show current state without fetching history")
}

// --- schedule command ---

var (
	scheduleReq  orchestrator.TaskRequest
	scheduleJSON bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Suggest when to schedule a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.orchestrator.Orchestrate(cmd.Context(), scheduleReq)
		if err != nil {
			return err
		}

		if scheduleJSON {
			return printJSON(res)
		}

		s := res.Suggestion
		fmt.Printf("%s (%s)\n", res.Task.Title, res.Task.Category)
		fmt.Printf("  Suggested: %s for %d min\n", s.ScheduledAt.Local().Format("Mon 2006-01-02 15:04"), s.DurationMinutes)
		fmt.Printf("  Confidence: %.2f (%s)\n", res.Confidence, s.Source)
		fmt.Printf("  Reasoning: %s\n", res.Reasoning)
		if len(res.Alternatives) > 0 {
			fmt.Println("  Alternatives:")
			for _, alt := range res.Alternatives {
				fmt.Printf("    %s", alt.At.Local().Format("Mon 15:04"))
				if alt.Reason != "" {
					fmt.Printf("  %s", alt.Reason)
				}
				fmt.Println()
			}
		}
		if res.ExternalTaskID != nil {
			fmt.Printf("  Saved to task store: %s\n", *res.ExternalTaskID)
		}
		return nil
	},
}

func init() {
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleReq.Title, "title", "", "Task title")
	f.StringVar(&scheduleReq.Category, "category", "", "Task category")
	f.StringVar(&scheduleReq.Priority, "priority", "Média", "Task priority")
	f.StringVar(&scheduleReq.Description, "description", "", "Task description")
	f.IntVar(&scheduleReq.EstimatedTime, "estimate", 0, "Estimated time in minutes")
	f.BoolVar(&scheduleJSON, "json", false, "Print the full response as JSON")
	_ = scheduleCmd.MarkFlagRequired("title")
	_ = scheduleCmd.MarkFlagRequired("category")
}

// --- feedback command ---

var (
	feedbackEvent  feedback.Event
	feedbackRating int
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record feedback on a suggestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		proc := feedback.NewProcessor(db, cfg.Learning, logger, nil)
		if cmd.Flags().Changed("rating") {
			feedbackEvent.Rating = &feedbackRating
		}
		res, err := proc.Process(cmd.Context(), feedbackEvent)
		if err != nil {
			return err
		}

		fmt.Printf("Feedback recorded (id %d)\n", res.FeedbackID)
		if res.InsightsGenerated == 0 {
			fmt.Println("  No insights derived")
		}
		for _, t := range res.InsightTypes {
			fmt.Printf("  Insight: %s\n", t)
		}
		for k, v := range res.PatternUpdates {
			fmt.Printf("  Pattern update: %s %+g\n", k, v)
		}
		if !res.LearningApplied {
			fmt.Println("  Warning: some learning data could not be saved")
		}
		return nil
	},
}

func init() {
	f := feedbackCmd.Flags()
	f.StringVar(&feedbackEvent.TaskID, "task", "", "Task ID the feedback is about")
	f.StringVar(&feedbackEvent.SuggestionID, "suggestion", "", "Suggestion ID")
	f.IntVar(&feedbackRating, "rating", 3, "Rating from 1 to 5")
	f.StringVar(&feedbackEvent.Comment, "comment", "", "Free-text comment")
	f.StringVar(&feedbackEvent.UserAction, "action", "", "What you did with the suggestion (accepted, moved_earlier, moved_later)")
	f.StringVar(&feedbackEvent.ActualExecutionTime, "actual-time", "", "When the task was actually done")
	f.StringVar(&feedbackEvent.ProductivityLevel, "productivity", "", "How productive it felt")
	_ = feedbackCmd.MarkFlagRequired("task")
}

// --- trends command ---

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show feedback trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		trends, err := feedback.NewProcessor(db, cfg.Learning, logger, nil).CalculateTrends(cmd.Context())
		if err != nil {
			return err
		}
		if trends == nil {
			fmt.Printf("No feedback in the last %d days.\n", cfg.Learning.TrendWindowDays)
			return nil
		}

		fmt.Printf("Feedback over the last %d days:\n", cfg.Learning.TrendWindowDays)
		fmt.Printf("  Events: %d\n", trends.TotalFeedbackCount)
		fmt.Printf("  Average rating: %.2f (%s)\n", trends.AverageRating, trends.RatingTrend)
		if trends.ImprovementNeeded {
			fmt.Println("  Suggestions need improvement")
		}
		if len(trends.CommonActions) > 0 {
			fmt.Println("  Actions:")
			actions := make([]string, 0, len(trends.CommonActions))
			for k := range trends.CommonActions {
				actions = append(actions, k)
			}
			sort.Slice(actions, func(i, j int) bool {
				return trends.CommonActions[actions[i]] > trends.CommonActions[actions[j]]
			})
			for _, k := range actions {
				fmt.Printf("    %s: %d\n", k, trends.CommonActions[k])
			}
		}
		return nil
	},
}

// --- patterns command ---

var minConfidence float64

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		analyzer := patterns.NewAnalyzer(db, cfg.Learning, logger, nil)
		threshold := analyzer.Threshold()
		if cmd.Flags().Changed("min-confidence") {
			threshold = minConfidence
		}

		stored, err := analyzer.CurrentPatternsAbove(cmd.Context(), threshold)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			fmt.Printf("No patterns at or above confidence %.2f. Run 'chronos learn' first.\n", threshold)
			return nil
		}

		for _, s := range stored {
			data, err := json.MarshalIndent(s.Data, "    ", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("%s  confidence %.2f  samples %d  updated %s\n", s.Type, s.Confidence, s.SampleSize,
				s.LastUpdated.Local().Format("2006-01-02 15:04"))
			fmt.Printf("    %s\n", data)
		}
		return nil
	},
}

func init() {
	patternsCmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Override the configured confidence threshold")
}

// --- validate command ---

var validateCmd = &cobra.Command{
	Use:   "validate [type] [result]",
	Short: "Record an external validation result for a pattern",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := patterns.ParseType(args[0])
		if err != nil {
			return err
		}
		result, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid result: %s", args[1])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := patterns.NewAnalyzer(db, cfg.Learning, logger, nil).
			ValidatePattern(cmd.Context(), t, result, map[string]any{"source": "cli"})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no stored %s pattern to validate; run 'chronos learn' first", t)
		}
		fmt.Printf("Recorded validation %.2f for %s\n", result, t)
		return nil
	},
}

// --- insights command ---

var insightDays int

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List recent learning insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		insights, err := feedback.NewProcessor(db, cfg.Learning, logger, nil).RecentInsights(cmd.Context(), insightDays)
		if err != nil {
			return err
		}
		if len(insights) == 0 {
			fmt.Printf("No insights in the last %d days.\n", insightDays)
			return nil
		}
		for _, in := range insights {
			when := ""
			if in.CreatedAt != nil {
				when = in.CreatedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("  %s  %-24s impact %-6s confidence %.2f\n", when, in.Type, in.Impact, in.Confidence)
		}
		return nil
	},
}

func init() {
	insightsCmd.Flags().IntVar(&insightDays, "days", 7, "How many days back to look")
}

// --- report command ---

var (
	reportHTML bool
	reportDays int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a Markdown report of everything learned",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		in, err := report.Gather(cmd.Context(),
			patterns.NewAnalyzer(db, cfg.Learning, logger, nil),
			feedback.NewProcessor(db, cfg.Learning, logger, nil),
			reportDays, time.Now())
		if err != nil {
			return err
		}

		out := report.Build(in)
		if reportHTML {
			if out, err = report.HTML(out); err != nil {
				return err
			}
		}
		_, err = os.Stdout.WriteString(out)
		return err
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of Markdown")
	reportCmd.Flags().IntVar(&reportDays, "days", 7, "Insight window in days")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
