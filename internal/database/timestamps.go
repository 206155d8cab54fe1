package database

import (
	"fmt"
	"time"
)

// timestampLayout is fixed width so lexical order in SQLite equals time order.
const timestampLayout = "2006-01-02 15:04:05.000000"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts our own layout plus the CURRENT_TIMESTAMP and
// microsecond forms written by older stores.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		timestampLayout,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
