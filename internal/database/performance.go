package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertPerformanceSnapshot records a recent-performance summary.
func (db *DB) InsertPerformanceSnapshot(ctx context.Context, data string, sampleSize int) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO performance_snapshots (data, sample_size, recorded_at) VALUES (?, ?, ?)`,
		data, sampleSize, formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("inserting performance snapshot: %w", err)
	}
	return nil
}

// LatestPerformanceSnapshot returns the most recent snapshot, or nil if none exist.
func (db *DB) LatestPerformanceSnapshot(ctx context.Context) (*PerformanceSnapshotRow, error) {
	var s PerformanceSnapshotRow
	var ts string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, data, sample_size, recorded_at
		FROM performance_snapshots
		ORDER BY id DESC LIMIT 1`).Scan(&s.ID, &s.Data, &s.SampleSize, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.RecordedAt, err = parseTimestamp(ts); err != nil {
		return nil, err
	}
	return &s, nil
}
