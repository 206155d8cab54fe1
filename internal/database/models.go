package database

import "time"

// PatternRow is one stored pattern family. PatternData holds the JSON
// encoding of the typed pattern.
type PatternRow struct {
	ID              int64
	PatternType     string
	PatternData     string
	ConfidenceScore float64
	SampleSize      int
	LastUpdated     time.Time
}

// PatternValidation links an observed result back to a stored pattern.
type PatternValidation struct {
	ID               int64
	PatternID        int64
	ValidationResult float64
	Context          string
	Timestamp        time.Time
}

// FeedbackRow is one append-only feedback event.
type FeedbackRow struct {
	ID                  int64
	TaskID              string
	SuggestionID        string
	Rating              int
	Comment             string
	ActualExecutionTime string
	ProductivityLevel   string
	UserAction          string
	ContextData         string
	Timestamp           time.Time
}

// InsightRow is one append-only insight derived from a feedback event.
type InsightRow struct {
	ID              int64
	FeedbackID      *int64
	InsightType     string
	InsightData     string
	ConfidenceScore float64
	ImpactLevel     string
	CreatedAt       time.Time
}

// PerformanceSnapshotRow is a recent-performance summary recorded by a
// pattern analysis run.
type PerformanceSnapshotRow struct {
	ID         int64
	Data       string
	SampleSize int
	RecordedAt time.Time
}

// Stats contains aggregate learning store statistics.
type Stats struct {
	Patterns           int
	ConfidentPatterns  int
	Validations        int
	FeedbackEvents     int
	Insights           int
	PerformanceRecords int
	LastPatternUpdate  *time.Time
}
