package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/TobiSchelling/chronos/internal/logging"
)

// DB wraps the SQLite learning store: patterns, validations, feedback,
// insights and performance snapshots.
type DB struct {
	conn *sql.DB
	path string

	// writeMu serialises writers so concurrent analysis runs and feedback
	// appends never race on SQLITE_BUSY.
	writeMu sync.Mutex
}

// Open creates or opens a SQLite database at the given path and migrates it
// to the latest schema. A nil logger discards migration messages.
func Open(dbPath string, logger *zap.Logger) (*DB, error) {
	logger = logging.OrNop(logger)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	q := url.Values{}
	for _, p := range []string{"journal_mode(WAL)", "foreign_keys(1)", "busy_timeout(5000)"} {
		q.Add("_pragma", p)
	}
	conn, err := sql.Open("sqlite", dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
