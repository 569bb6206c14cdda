// Package storage defines the interface for coordination storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/untoldecay/aqua/internal/types"
)

// Error kinds surfaced by storage backends. Callers match with
// errors.Is; rendering (stderr vs JSON) is the CLI's concern.
var (
	// ErrNotInitialized is returned when the database file does not
	// exist for the project. Run `aqua init` first.
	ErrNotInitialized = errors.New("aqua not initialized")

	// ErrNotFound is returned when a referenced agent, task, or lock
	// row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNameConflict is returned when an agent name is already taken.
	ErrNameConflict = errors.New("agent name already taken")

	// ErrClaimFailed is returned when an optimistic task transition
	// matched zero rows: the task was already claimed, completed, or is
	// not in the expected state. The caller decides whether to retry.
	ErrClaimFailed = errors.New("task claim failed")

	// ErrDependencyUnmet is returned when a task cannot be claimed
	// because one of its prerequisites is not done.
	ErrDependencyUnmet = errors.New("task has unmet dependencies")

	// ErrLeaderContention is returned when a leadership attempt failed
	// because another agent holds an unexpired lease.
	ErrLeaderContention = errors.New("another agent holds the leader lease")

	// ErrBusy is returned when the write lock could not be obtained
	// within the busy timeout.
	ErrBusy = errors.New("database busy")

	// ErrSchemaVersion is returned when the stored schema version is
	// newer than this build understands. Never downgrade the version row.
	ErrSchemaVersion = errors.New("database schema is newer than this version of aqua")
)

// Transaction exposes the subset of Storage that participates in
// multi-statement invariants. All operations share one BEGIN IMMEDIATE
// transaction; an error from the callback rolls everything back.
//
// The claim protocol depends on this: a successful pending→claimed
// transition and the agent's current_task_id pointer must commit
// together (likewise completion/failure and the pointer clear).
type Transaction interface {
	GetAgent(ctx context.Context, id string) (*types.Agent, error)
	UpdateAgentTask(ctx context.Context, agentID, taskID string) error
	UpdateAgentStatus(ctx context.Context, agentID string, status types.AgentStatus) error

	GetTask(ctx context.Context, id string) (*types.Task, error)
	ClaimTask(ctx context.Context, taskID, agentID string, term int64) error
	CompleteTask(ctx context.Context, taskID, agentID, result string) error
	FailTask(ctx context.Context, taskID, agentID, reason string) error
	AbandonTask(ctx context.Context, taskID, reason string) error

	ReleaseAgentLocks(ctx context.Context, agentID string) (int, error)

	LogEvent(ctx context.Context, eventType, agentID, taskID string, details map[string]string) error
}

// Storage is the durable coordination store shared by unrelated
// processes. Implementations must provide serialized writers, row-level
// conditional updates with observable affected-row counts, and short
// immediate-mode transactions.
type Storage interface {
	// Agents
	CreateAgent(ctx context.Context, agent *types.Agent) error
	GetAgent(ctx context.Context, id string) (*types.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*types.Agent, error)
	ListAgents(ctx context.Context, status types.AgentStatus) ([]*types.Agent, error)
	Heartbeat(ctx context.Context, agentID string) error
	UpdateAgentStatus(ctx context.Context, agentID string, status types.AgentStatus) error
	UpdateAgentTask(ctx context.Context, agentID, taskID string) error
	UpdateAgentRole(ctx context.Context, agentID, role string) error
	UpdateAgentProgress(ctx context.Context, agentID, progress string) error
	DeleteAgent(ctx context.Context, agentID string) error

	// Tasks
	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	NextPendingTask(ctx context.Context) (*types.Task, error)
	NextPendingTaskForRole(ctx context.Context, role string) (*types.Task, bool, error)
	BlockingDependencies(ctx context.Context, task *types.Task) ([]*types.Task, error)
	ClaimTask(ctx context.Context, taskID, agentID string, term int64) error
	CompleteTask(ctx context.Context, taskID, agentID, result string) error
	FailTask(ctx context.Context, taskID, agentID, reason string) error
	AbandonTask(ctx context.Context, taskID, reason string) error
	RequeueAbandoned(ctx context.Context) (int, error)
	UpdateTaskProgress(ctx context.Context, taskID, progress string) error
	TaskCounts(ctx context.Context) (types.TaskCounts, error)

	// Leader election
	TryBecomeLeader(ctx context.Context, agentID string, lease time.Duration) (bool, int64, error)
	GetLeader(ctx context.Context) (*types.Leader, error)
	CurrentTerm(ctx context.Context) (int64, error)

	// Messages
	SendMessage(ctx context.Context, from, to, content, messageType string) (*types.Message, error)
	Inbox(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]*types.Message, error)
	MarkMessagesRead(ctx context.Context, agentID string, messageIDs []int64) (int, error)

	// Event log
	LogEvent(ctx context.Context, eventType, agentID, taskID string, details map[string]string) error
	ListEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error)

	// File locks (advisory)
	LockFile(ctx context.Context, path, agentID string) (bool, error)
	UnlockFile(ctx context.Context, path, agentID string) (bool, error)
	GetFileLock(ctx context.Context, path string) (*types.FileLock, error)
	ListLocks(ctx context.Context) ([]*types.FileLock, error)
	AgentLocks(ctx context.Context, agentID string) ([]*types.FileLock, error)
	ReleaseAgentLocks(ctx context.Context, agentID string) (int, error)

	// RunInTransaction executes fn within one BEGIN IMMEDIATE
	// transaction. If fn returns nil the transaction commits; on error
	// or panic it rolls back.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
	Path() string
}
