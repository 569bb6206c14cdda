package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamps are persisted as RFC3339 UTC strings with a fixed-width
// nanosecond field. time.RFC3339Nano trims trailing zeros, which
// breaks lexicographic ordering ("...05.5Z" sorts after "...05.52Z");
// the fixed-width form keeps SQL comparisons on the text columns
// chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

// decodeTime accepts any RFC3339 variant, not just the fixed-width
// form this build writes.
func decodeTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func decodeTimePtr(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	t, err := decodeTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeStrings serializes a list to a JSON blob column, preserving
// element order. Empty lists persist as NULL.
func encodeStrings(list []string) any {
	if len(list) == 0 {
		return nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		// []string cannot fail to marshal; keep the column NULL rather
		// than persisting garbage.
		return nil
	}
	return string(raw)
}

func decodeStrings(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw.String), &list); err != nil {
		return nil, fmt.Errorf("invalid JSON list %q: %w", raw.String, err)
	}
	return list, nil
}

// encodeStringMap serializes a free-form mapping to a JSON blob column.
func encodeStringMap(m map[string]string) any {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(raw)
}

func decodeStringMap(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("invalid JSON map %q: %w", raw.String, err)
	}
	return m, nil
}

// nullable returns nil for empty strings so optional text columns
// persist as NULL instead of "".
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringOrEmpty(raw sql.NullString) string {
	if raw.Valid {
		return raw.String
	}
	return ""
}
