package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertFeedback appends a feedback event and returns its row ID.
func (db *DB) InsertFeedback(ctx context.Context, f FeedbackRow) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_feedback
			(task_id, suggestion_id, rating, comment, actual_execution_time,
			 productivity_level, user_action, context_data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TaskID, nullString(f.SuggestionID), f.Rating, nullString(f.Comment),
		nullString(f.ActualExecutionTime), nullString(f.ProductivityLevel),
		nullString(f.UserAction), nullString(f.ContextData), formatTimestamp(f.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting feedback: %w", err)
	}
	return result.LastInsertId()
}

// ListFeedbackSince returns feedback recorded at or after since, oldest first.
func (db *DB) ListFeedbackSince(ctx context.Context, since time.Time) ([]FeedbackRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, task_id, COALESCE(suggestion_id, ''), rating, COALESCE(comment, ''),
			COALESCE(actual_execution_time, ''), COALESCE(productivity_level, ''),
			COALESCE(user_action, ''), COALESCE(context_data, ''), timestamp
		FROM user_feedback
		WHERE timestamp >= ?
		ORDER BY timestamp, id`, formatTimestamp(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []FeedbackRow
	for rows.Next() {
		var f FeedbackRow
		var ts string
		if err := rows.Scan(&f.ID, &f.TaskID, &f.SuggestionID, &f.Rating, &f.Comment,
			&f.ActualExecutionTime, &f.ProductivityLevel, &f.UserAction, &f.ContextData, &ts); err != nil {
			return nil, err
		}
		if f.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		events = append(events, f)
	}
	return events, rows.Err()
}

// InsertInsight appends a learning insight and returns its row ID.
func (db *DB) InsertInsight(ctx context.Context, in InsightRow) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	var feedbackID sql.NullInt64
	if in.FeedbackID != nil {
		feedbackID = sql.NullInt64{Int64: *in.FeedbackID, Valid: true}
	}
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO learning_insights
			(feedback_id, insight_type, insight_data, confidence_score, impact_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		feedbackID, in.InsightType, in.InsightData, in.ConfidenceScore,
		nullString(in.ImpactLevel), formatTimestamp(in.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting insight %s: %w", in.InsightType, err)
	}
	return result.LastInsertId()
}

// ListInsightsSince returns insights created at or after since, newest first.
func (db *DB) ListInsightsSince(ctx context.Context, since time.Time) ([]InsightRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, feedback_id, insight_type, insight_data,
			COALESCE(confidence_score, 0), COALESCE(impact_level, ''), created_at
		FROM learning_insights
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC`, formatTimestamp(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []InsightRow
	for rows.Next() {
		var in InsightRow
		var feedbackID sql.NullInt64
		var ts string
		if err := rows.Scan(&in.ID, &feedbackID, &in.InsightType, &in.InsightData,
			&in.ConfidenceScore, &in.ImpactLevel, &ts); err != nil {
			return nil, err
		}
		if feedbackID.Valid {
			id := feedbackID.Int64
			in.FeedbackID = &id
		}
		if in.CreatedAt, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
