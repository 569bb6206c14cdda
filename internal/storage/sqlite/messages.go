package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/aqua/internal/types"
)

// SendMessage appends a message to the mailbox. An empty to means
// broadcast. The stored row, with its assigned id, is returned.
func (s *Store) SendMessage(ctx context.Context, from, to, content, messageType string) (*types.Message, error) {
	if messageType == "" {
		messageType = "chat"
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (from_agent, to_agent, content, message_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		from, nullable(to), content, messageType, encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", mapSQLiteErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}
	return &types.Message{
		ID:          id,
		FromAgent:   from,
		ToAgent:     to,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   now,
	}, nil
}

// Inbox returns messages addressed to the agent plus broadcasts, oldest
// first. unreadOnly restricts to messages without a read marker; a
// limit of zero means no cap.
func (s *Store) Inbox(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*types.Message, error) {
	query := `SELECT id, from_agent, to_agent, content, message_type, created_at, read_at
		FROM messages WHERE (to_agent = ? OR to_agent IS NULL)`
	args := []any{agentID}
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var (
		msg        types.Message
		toAgent    sql.NullString
		createdRaw string
		readAt     sql.NullString
	)
	err := row.Scan(&msg.ID, &msg.FromAgent, &toAgent, &msg.Content,
		&msg.MessageType, &createdRaw, &readAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.ToAgent = stringOrEmpty(toAgent)
	if msg.CreatedAt, err = decodeTime(createdRaw); err != nil {
		return nil, err
	}
	if msg.ReadAt, err = decodeTimePtr(readAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkMessagesRead stamps read markers on the agent's messages. With an
// empty id list every unread message visible to the agent is marked.
// Returns how many rows were stamped.
//
// Broadcast read markers are shared: the first reader marks the row for
// everyone. Per-reader tracking is not worth a join table for a local
// mailbox.
func (s *Store) MarkMessagesRead(ctx context.Context, agentID string, messageIDs []int64) (int, error) {
	now := encodeTime(time.Now().UTC())
	query := `UPDATE messages SET read_at = ?
		WHERE (to_agent = ? OR to_agent IS NULL) AND read_at IS NULL`
	args := []any{now, agentID}

	if len(messageIDs) > 0 {
		placeholders := make([]string, len(messageIDs))
		for i, id := range messageIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND id IN (` + strings.Join(placeholders, ", ") + `)`
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}
