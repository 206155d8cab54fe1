package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertPattern inserts or replaces the single live row for a pattern type.
func (db *DB) UpsertPattern(ctx context.Context, p PatternRow) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO patterns (pattern_type, pattern_data, confidence_score, sample_size, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pattern_type) DO UPDATE SET
			pattern_data = excluded.pattern_data,
			confidence_score = excluded.confidence_score,
			sample_size = excluded.sample_size,
			last_updated = excluded.last_updated`,
		p.PatternType, p.PatternData, p.ConfidenceScore, p.SampleSize, formatTimestamp(p.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("upserting pattern %s: %w", p.PatternType, err)
	}
	return nil
}

// ListPatterns returns patterns with confidence_score >= minConfidence,
// most recently updated first.
func (db *DB) ListPatterns(ctx context.Context, minConfidence float64) ([]PatternRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, pattern_type, pattern_data, confidence_score, sample_size, last_updated
		FROM patterns
		WHERE confidence_score >= ?
		ORDER BY last_updated DESC, id DESC`, minConfidence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []PatternRow
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// GetPattern returns the stored row for a pattern type, or nil if absent.
func (db *DB) GetPattern(ctx context.Context, patternType string) (*PatternRow, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, pattern_type, pattern_data, confidence_score, sample_size, last_updated
		FROM patterns WHERE pattern_type = ?`, patternType)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(s scanner) (*PatternRow, error) {
	var p PatternRow
	var updated string
	if err := s.Scan(&p.ID, &p.PatternType, &p.PatternData, &p.ConfidenceScore, &p.SampleSize, &updated); err != nil {
		return nil, err
	}
	t, err := parseTimestamp(updated)
	if err != nil {
		return nil, err
	}
	p.LastUpdated = t
	return &p, nil
}

// InsertPatternValidation appends a validation record for the stored pattern
// of the given type. It returns false without error when the type has never
// been stored.
func (db *DB) InsertPatternValidation(ctx context.Context, patternType string, result float64, contextJSON string) (bool, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	var patternID int64
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM patterns WHERE pattern_type = ?`, patternType).Scan(&patternID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO pattern_validations (pattern_id, validation_result, context, timestamp)
		VALUES (?, ?, ?, ?)`,
		patternID, result, contextJSON, formatTimestamp(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("inserting validation: %w", err)
	}
	return true, nil
}

// GetPatternValidations returns validation records for a pattern type, oldest first.
func (db *DB) GetPatternValidations(ctx context.Context, patternType string) ([]PatternValidation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT v.id, v.pattern_id, v.validation_result, COALESCE(v.context, ''), v.timestamp
		FROM pattern_validations v
		JOIN patterns p ON p.id = v.pattern_id
		WHERE p.pattern_type = ?
		ORDER BY v.id`, patternType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var validations []PatternValidation
	for rows.Next() {
		var v PatternValidation
		var ts string
		if err := rows.Scan(&v.ID, &v.PatternID, &v.ValidationResult, &v.Context, &ts); err != nil {
			return nil, err
		}
		if v.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		validations = append(validations, v)
	}
	return validations, rows.Err()
}

// CountPatternValidations returns how many validation records exist for a pattern type.
func (db *DB) CountPatternValidations(ctx context.Context, patternType string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pattern_validations v
		JOIN patterns p ON p.id = v.pattern_id
		WHERE p.pattern_type = ?`, patternType).Scan(&n)
	return n, err
}
