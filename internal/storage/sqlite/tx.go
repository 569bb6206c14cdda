package sqlite

import (
	"context"
	"database/sql"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/types"
)

// txStore adapts one open *sql.Tx to the storage.Transaction interface.
// Every method runs on the same immediate transaction, so a claim and
// its agent pointer update commit or roll back together.
type txStore struct {
	tx *sql.Tx
}

var _ storage.Transaction = (*txStore)(nil)

func (t *txStore) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	return getAgent(ctx, t.tx, id)
}

func (t *txStore) UpdateAgentTask(ctx context.Context, agentID, taskID string) error {
	return updateAgentTask(ctx, t.tx, agentID, taskID)
}

func (t *txStore) UpdateAgentStatus(ctx context.Context, agentID string, status types.AgentStatus) error {
	return updateAgentStatus(ctx, t.tx, agentID, status)
}

func (t *txStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getTask(ctx, t.tx, id)
}

func (t *txStore) ClaimTask(ctx context.Context, taskID, agentID string, term int64) error {
	return claimTask(ctx, t.tx, taskID, agentID, term)
}

func (t *txStore) CompleteTask(ctx context.Context, taskID, agentID, result string) error {
	return completeTask(ctx, t.tx, taskID, agentID, result)
}

func (t *txStore) FailTask(ctx context.Context, taskID, agentID, reason string) error {
	return failTask(ctx, t.tx, taskID, agentID, reason)
}

func (t *txStore) AbandonTask(ctx context.Context, taskID, reason string) error {
	return abandonTask(ctx, t.tx, taskID, reason)
}

func (t *txStore) ReleaseAgentLocks(ctx context.Context, agentID string) (int, error) {
	return releaseAgentLocks(ctx, t.tx, agentID)
}

func (t *txStore) LogEvent(ctx context.Context, eventType, agentID, taskID string, details map[string]string) error {
	return logEvent(ctx, t.tx, eventType, agentID, taskID, details)
}
