package database

import (
	"context"
	"database/sql"
)

// GetStats returns aggregate counts across the learning store. Patterns at or
// above minConfidence are reported as confident.
func (db *DB) GetStats(ctx context.Context, minConfidence float64) (*Stats, error) {
	s := &Stats{}

	counts := []struct {
		query string
		args  []any
		dest  *int
	}{
		{"SELECT COUNT(*) FROM patterns", nil, &s.Patterns},
		{"SELECT COUNT(*) FROM patterns WHERE confidence_score >= ?", []any{minConfidence}, &s.ConfidentPatterns},
		{"SELECT COUNT(*) FROM pattern_validations", nil, &s.Validations},
		{"SELECT COUNT(*) FROM user_feedback", nil, &s.FeedbackEvents},
		{"SELECT COUNT(*) FROM learning_insights", nil, &s.Insights},
		{"SELECT COUNT(*) FROM performance_snapshots", nil, &s.PerformanceRecords},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var last sql.NullString
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(last_updated) FROM patterns").Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		t, err := parseTimestamp(last.String)
		if err != nil {
			return nil, err
		}
		s.LastPatternUpdate = &t
	}
	return s, nil
}
