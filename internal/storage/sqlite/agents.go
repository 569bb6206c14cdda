package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/types"
)

const agentColumns = `id, name, agent_type, pid, status, last_heartbeat_at, registered_at,
	current_task_id, capabilities, metadata, last_progress, role`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*types.Agent, error) {
	var (
		agent                    types.Agent
		agentType, status        string
		pid                      sql.NullInt64
		heartbeatRaw, registered string
		currentTask              sql.NullString
		capabilities, metadata   sql.NullString
		lastProgress, role       sql.NullString
	)
	err := row.Scan(&agent.ID, &agent.Name, &agentType, &pid, &status,
		&heartbeatRaw, &registered, &currentTask, &capabilities, &metadata,
		&lastProgress, &role)
	if err != nil {
		return nil, err
	}

	if agent.AgentType, err = types.ParseAgentType(agentType); err != nil {
		return nil, err
	}
	if agent.Status, err = types.ParseAgentStatus(status); err != nil {
		return nil, err
	}
	if pid.Valid {
		p := int(pid.Int64)
		agent.PID = &p
	}
	if agent.LastHeartbeatAt, err = decodeTime(heartbeatRaw); err != nil {
		return nil, err
	}
	if agent.RegisteredAt, err = decodeTime(registered); err != nil {
		return nil, err
	}
	agent.CurrentTaskID = stringOrEmpty(currentTask)
	if agent.Capabilities, err = decodeStrings(capabilities); err != nil {
		return nil, err
	}
	if agent.Metadata, err = decodeStringMap(metadata); err != nil {
		return nil, err
	}
	agent.LastProgress = stringOrEmpty(lastProgress)
	agent.Role = stringOrEmpty(role)
	return &agent, nil
}

// CreateAgent registers a new agent. The caller supplies the id and
// name; timestamps default to now when unset.
func (s *Store) CreateAgent(ctx context.Context, agent *types.Agent) error {
	now := time.Now().UTC()
	if agent.RegisteredAt.IsZero() {
		agent.RegisteredAt = now
	}
	if agent.LastHeartbeatAt.IsZero() {
		agent.LastHeartbeatAt = now
	}
	if agent.Status == "" {
		agent.Status = types.AgentActive
	}
	if agent.AgentType == "" {
		agent.AgentType = types.TypeGeneric
	}

	var pid any
	if agent.PID != nil {
		pid = *agent.PID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, agent_type, pid, status, last_heartbeat_at,
			registered_at, current_task_id, capabilities, metadata, last_progress, role)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, string(agent.AgentType), pid, string(agent.Status),
		encodeTime(agent.LastHeartbeatAt), encodeTime(agent.RegisteredAt),
		nullable(agent.CurrentTaskID), encodeStrings(agent.Capabilities),
		encodeStringMap(agent.Metadata), nullable(agent.LastProgress), nullable(agent.Role))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", storage.ErrNameConflict, agent.Name)
		}
		return fmt.Errorf("failed to create agent: %w", mapSQLiteErr(err))
	}
	return nil
}

func getAgent(ctx context.Context, q dbtx, id string) (*types.Agent, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", mapSQLiteErr(err))
	}
	return agent, nil
}

// GetAgent returns the agent with the given id.
func (s *Store) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	return getAgent(ctx, s.db, id)
}

// GetAgentByName returns the agent with the given unique name.
func (s *Store) GetAgentByName(ctx context.Context, name string) (*types.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = ?`, name)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent by name: %w", mapSQLiteErr(err))
	}
	return agent, nil
}

// ListAgents returns agents ordered by registration time. An empty
// status matches all.
func (s *Store) ListAgents(ctx context.Context, status types.AgentStatus) ([]*types.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY registered_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", mapSQLiteErr(err))
	}
	defer func() { _ = rows.Close() }()

	var agents []*types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// Heartbeat refreshes the agent's liveness timestamp.
func (s *Store) Heartbeat(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_heartbeat_at = ? WHERE id = ?`,
		encodeTime(time.Now().UTC()), agentID)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", mapSQLiteErr(err))
	}
	return requireAffected(res, agentID)
}

func updateAgentStatus(ctx context.Context, q dbtx, agentID string, status types.AgentStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid agent status %q", status)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE agents SET status = ? WHERE id = ?`, string(status), agentID)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", mapSQLiteErr(err))
	}
	return requireAffected(res, agentID)
}

// UpdateAgentStatus transitions the agent between active, idle, and dead.
func (s *Store) UpdateAgentStatus(ctx context.Context, agentID string, status types.AgentStatus) error {
	return updateAgentStatus(ctx, s.db, agentID, status)
}

func updateAgentTask(ctx context.Context, q dbtx, agentID, taskID string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE agents SET current_task_id = ? WHERE id = ?`,
		nullable(taskID), agentID)
	if err != nil {
		return fmt.Errorf("failed to update agent task pointer: %w", mapSQLiteErr(err))
	}
	return requireAffected(res, agentID)
}

// UpdateAgentTask points the agent at its current task. An empty taskID
// clears the pointer.
func (s *Store) UpdateAgentTask(ctx context.Context, agentID, taskID string) error {
	return updateAgentTask(ctx, s.db, agentID, taskID)
}

// UpdateAgentRole sets the agent's advisory role tag.
func (s *Store) UpdateAgentRole(ctx context.Context, agentID, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET role = ? WHERE id = ?`, nullable(role), agentID)
	if err != nil {
		return fmt.Errorf("failed to update agent role: %w", mapSQLiteErr(err))
	}
	return requireAffected(res, agentID)
}

// UpdateAgentProgress records a free-form progress checkpoint and
// refreshes the heartbeat, since reporting progress proves liveness.
func (s *Store) UpdateAgentProgress(ctx context.Context, agentID, progress string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_progress = ?, last_heartbeat_at = ? WHERE id = ?`,
		nullable(progress), encodeTime(time.Now().UTC()), agentID)
	if err != nil {
		return fmt.Errorf("failed to update agent progress: %w", mapSQLiteErr(err))
	}
	return requireAffected(res, agentID)
}

// DeleteAgent removes the agent row. Tasks and events referencing the
// agent keep their id strings for the audit trail.
func (s *Store) DeleteAgent(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", mapSQLiteErr(err))
	}
	return requireAffected(res, agentID)
}

// requireAffected converts a zero-row update on an agent into
// storage.ErrNotFound.
func requireAffected(res sql.Result, agentID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent %s: %w", agentID, storage.ErrNotFound)
	}
	return nil
}
