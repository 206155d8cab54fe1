package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "knowledge store schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS patterns (
    id INTEGER PRIMARY KEY,
    pattern_type TEXT NOT NULL,
    pattern_data TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    sample_size INTEGER NOT NULL,
    last_updated TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pattern_validations (
    id INTEGER PRIMARY KEY,
    pattern_id INTEGER,
    validation_result REAL,
    context TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (pattern_id) REFERENCES patterns (id)
);

CREATE TABLE IF NOT EXISTS user_feedback (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL,
    suggestion_id TEXT,
    rating INTEGER NOT NULL,
    comment TEXT,
    actual_execution_time TEXT,
    productivity_level TEXT,
    user_action TEXT,
    context_data TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS learning_insights (
    id INTEGER PRIMARY KEY,
    insight_type TEXT NOT NULL,
    insight_data TEXT NOT NULL,
    confidence_score REAL,
    impact_level TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "unique pattern type, insight provenance, performance snapshots",
		Up: func(tx *sql.Tx) error {
			// Older stores could hold several rows per pattern type. Keep the
			// newest row and repoint validations at it before adding the key.
			_, err := tx.Exec(`
UPDATE pattern_validations
SET pattern_id = (
    SELECT MAX(p2.id) FROM patterns p2
    WHERE p2.pattern_type = (SELECT p.pattern_type FROM patterns p WHERE p.id = pattern_validations.pattern_id)
)
WHERE pattern_id IS NOT NULL;

DELETE FROM patterns
WHERE id NOT IN (SELECT MAX(id) FROM patterns GROUP BY pattern_type);

CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);
CREATE INDEX IF NOT EXISTS idx_patterns_confidence ON patterns(confidence_score);
CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON user_feedback(timestamp);
CREATE INDEX IF NOT EXISTS idx_insights_created ON learning_insights(created_at);

CREATE TABLE IF NOT EXISTS performance_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    data TEXT NOT NULL,
    sample_size INTEGER NOT NULL DEFAULT 0,
    recorded_at TEXT NOT NULL
);
`)
			if err != nil {
				return err
			}

			exists, err := hasColumn(tx, "learning_insights", "feedback_id")
			if err != nil || exists {
				return err
			}
			_, err = tx.Exec(`ALTER TABLE learning_insights ADD COLUMN feedback_id INTEGER REFERENCES user_feedback(id)`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
