package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/untoldecay/aqua/internal/types"
)

// TryBecomeLeader attempts to take or renew the singleton leader lease.
// It returns (true, term) when the agent holds the lease afterwards and
// (false, currentTerm) when another agent's lease is still live.
//
// The whole attempt runs in one immediate transaction, so the
// read-decide-write sequence is serialized against other claimants. The
// takeover UPDATE still guards on the observed term: a zero-row result
// means the row moved underneath us and the attempt is reported lost
// rather than retried blindly.
//
// Terms only grow. Renewal of a still-live lease by the incumbent
// keeps the term; once the lease expires, every election is a takeover
// and increments it, the incumbent's own re-election included. The
// bump fences any writes the previous term's leader issues late.
func (s *Store) TryBecomeLeader(ctx context.Context, agentID string, lease time.Duration) (bool, int64, error) {
	var (
		won  bool
		term int64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		expiry := encodeTime(now.Add(lease))

		var (
			holder     string
			curTerm    int64
			expiresRaw string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT agent_id, term, lease_expires_at FROM leader WHERE id = 1`).
			Scan(&holder, &curTerm, &expiresRaw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// First election ever.
			_, err := tx.ExecContext(ctx, `
				INSERT INTO leader (id, agent_id, term, lease_expires_at, elected_at)
				VALUES (1, ?, 1, ?, ?)`,
				agentID, expiry, encodeTime(now))
			if err != nil {
				return fmt.Errorf("failed to insert leader row: %w", mapSQLiteErr(err))
			}
			if err := logEvent(ctx, tx, types.EventLeaderElected, agentID, "",
				map[string]string{"term": "1", "reason": "initial"}); err != nil {
				return err
			}
			won, term = true, 1
			return nil
		case err != nil:
			return fmt.Errorf("failed to read leader row: %w", mapSQLiteErr(err))
		}

		expires, err := decodeTime(expiresRaw)
		if err != nil {
			return err
		}

		if now.Before(expires) {
			if holder == agentID {
				// Incumbent renewal of a live lease keeps the term.
				_, err := tx.ExecContext(ctx,
					`UPDATE leader SET lease_expires_at = ? WHERE id = 1 AND agent_id = ?`,
					expiry, agentID)
				if err != nil {
					return fmt.Errorf("failed to renew lease: %w", mapSQLiteErr(err))
				}
				won, term = true, curTerm
				return nil
			}
			// Live lease held by someone else. The lost attempt reports
			// the observed term, not zero, so callers can show who leads.
			won, term = false, curTerm
			return nil
		}

		// The lease is expired: every candidate goes through the
		// conditional takeover, the old holder included. A term only
		// survives an unbroken chain of live renewals.
		res, err := tx.ExecContext(ctx, `
			UPDATE leader
			SET agent_id = ?, term = term + 1, lease_expires_at = ?, elected_at = ?
			WHERE id = 1 AND term = ?`,
			agentID, expiry, encodeTime(now), curTerm)
		if err != nil {
			return fmt.Errorf("failed to take over lease: %w", mapSQLiteErr(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 1 {
			if err := logEvent(ctx, tx, types.EventLeaderElected, agentID, "",
				map[string]string{
					"term":            strconv.FormatInt(curTerm+1, 10),
					"reason":          "takeover",
					"previous_leader": holder,
				}); err != nil {
				return err
			}
			won, term = true, curTerm+1
			return nil
		}
		// Term moved between read and write; report the attempt lost.
		won, term = false, curTerm
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return won, term, nil
}

// GetLeader returns the current leader record, or nil when no election
// has happened yet. The caller checks IsExpired; an expired record is
// still returned so status output can show who held the lease last.
func (s *Store) GetLeader(ctx context.Context) (*types.Leader, error) {
	var (
		leader                 types.Leader
		expiresRaw, electedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, term, lease_expires_at, elected_at FROM leader WHERE id = 1`).
		Scan(&leader.AgentID, &leader.Term, &expiresRaw, &electedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leader: %w", mapSQLiteErr(err))
	}
	if leader.LeaseExpiresAt, err = decodeTime(expiresRaw); err != nil {
		return nil, err
	}
	if leader.ElectedAt, err = decodeTime(electedRaw); err != nil {
		return nil, err
	}
	return &leader, nil
}

// CurrentTerm returns the latest leader term, or zero before the first
// election.
func (s *Store) CurrentTerm(ctx context.Context) (int64, error) {
	var term int64
	err := s.db.QueryRowContext(ctx,
		`SELECT term FROM leader WHERE id = 1`).Scan(&term)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read term: %w", mapSQLiteErr(err))
	}
	return term, nil
}
