package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/untoldecay/aqua/internal/types"
)

// LockFile takes an advisory lock on a path. Returns true when the
// agent holds the lock afterwards, including when it already held it.
// Returns false, without error, when another agent holds it.
func (s *Store) LockFile(ctx context.Context, path, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO file_locks (file_path, agent_id, locked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO NOTHING`,
		path, agentID, encodeTime(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("failed to lock file: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// Conflict path: locking a path you already hold is a no-op success.
	holder, err := s.GetFileLock(ctx, path)
	if err != nil {
		return false, err
	}
	return holder != nil && holder.AgentID == agentID, nil
}

// UnlockFile releases a lock held by the agent. Returns false when the
// lock does not exist or belongs to someone else.
func (s *Store) UnlockFile(ctx context.Context, path, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM file_locks WHERE file_path = ? AND agent_id = ?`,
		path, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to unlock file: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// GetFileLock returns the lock on a path, or nil when unlocked.
func (s *Store) GetFileLock(ctx context.Context, path string) (*types.FileLock, error) {
	var (
		lock      types.FileLock
		lockedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT file_path, agent_id, locked_at FROM file_locks WHERE file_path = ?`,
		path).Scan(&lock.FilePath, &lock.AgentID, &lockedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file lock: %w", mapSQLiteErr(err))
	}
	if lock.LockedAt, err = decodeTime(lockedRaw); err != nil {
		return nil, err
	}
	return &lock, nil
}

// ListLocks returns every advisory lock, oldest first.
func (s *Store) ListLocks(ctx context.Context) ([]*types.FileLock, error) {
	return s.queryLocks(ctx,
		`SELECT file_path, agent_id, locked_at FROM file_locks ORDER BY locked_at ASC`)
}

// AgentLocks returns the locks held by one agent.
func (s *Store) AgentLocks(ctx context.Context, agentID string) ([]*types.FileLock, error) {
	return s.queryLocks(ctx,
		`SELECT file_path, agent_id, locked_at FROM file_locks
		 WHERE agent_id = ? ORDER BY locked_at ASC`, agentID)
}

func (s *Store) queryLocks(ctx context.Context, query string, args ...any) ([]*types.FileLock, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list file locks: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var locks []*types.FileLock
	for rows.Next() {
		var (
			lock      types.FileLock
			lockedRaw string
		)
		if err := rows.Scan(&lock.FilePath, &lock.AgentID, &lockedRaw); err != nil {
			return nil, fmt.Errorf("failed to scan file lock: %w", err)
		}
		if lock.LockedAt, err = decodeTime(lockedRaw); err != nil {
			return nil, err
		}
		locks = append(locks, &lock)
	}
	return locks, rows.Err()
}

func releaseAgentLocks(ctx context.Context, q dbtx, agentID string) (int, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM file_locks WHERE agent_id = ?`, agentID)
	if err != nil {
		return 0, fmt.Errorf("failed to release agent locks: %w", mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

// ReleaseAgentLocks drops every lock an agent holds. Used on leave and
// when recovery declares the agent dead.
func (s *Store) ReleaseAgentLocks(ctx context.Context, agentID string) (int, error) {
	return releaseAgentLocks(ctx, s.db, agentID)
}
