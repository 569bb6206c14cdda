package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/aqua/internal/types"
)

// defaultEventLimit caps ListEvents when the filter does not.
const defaultEventLimit = 50

func logEvent(ctx context.Context, q dbtx, eventType, agentID, taskID string, details map[string]string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO events (timestamp, event_type, agent_id, task_id, details)
		VALUES (?, ?, ?, ?, ?)`,
		encodeTime(time.Now().UTC()), eventType,
		nullable(agentID), nullable(taskID), encodeStringMap(details))
	if err != nil {
		return fmt.Errorf("failed to log event: %w", mapSQLiteErr(err))
	}
	return nil
}

// LogEvent appends to the audit trail. Events are never updated or
// deleted by the core.
func (s *Store) LogEvent(ctx context.Context, eventType, agentID, taskID string, details map[string]string) error {
	return logEvent(ctx, s.db, eventType, agentID, taskID, details)
}

// ListEvents returns audit entries matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	query := `SELECT id, timestamp, event_type, agent_id, task_id, details
		FROM events WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, filter.Type)
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, filter.TaskID)
	}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, encodeTime(filter.Since))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var (
			event            types.Event
			timestampRaw     string
			agentID, taskID  sql.NullString
			details          sql.NullString
		)
		if err := rows.Scan(&event.ID, &timestampRaw, &event.EventType,
			&agentID, &taskID, &details); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if event.Timestamp, err = decodeTime(timestampRaw); err != nil {
			return nil, err
		}
		event.AgentID = stringOrEmpty(agentID)
		event.TaskID = stringOrEmpty(taskID)
		if event.Details, err = decodeStringMap(details); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
