// Package types defines core data structures for the aqua coordinator.
package types

import (
	"fmt"
	"time"
)

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentActive AgentStatus = "active"
	AgentIdle   AgentStatus = "idle"
	AgentDead   AgentStatus = "dead"
)

// IsValid reports whether the status is a known agent state.
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentActive, AgentIdle, AgentDead:
		return true
	}
	return false
}

// ParseAgentStatus decodes a stored agent status. Unknown values are a
// schema error, never a silent default.
func ParseAgentStatus(raw string) (AgentStatus, error) {
	s := AgentStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown agent status %q", raw)
	}
	return s, nil
}

// AgentType identifies which kind of AI agent registered.
type AgentType string

const (
	TypeClaude  AgentType = "claude"
	TypeCodex   AgentType = "codex"
	TypeGemini  AgentType = "gemini"
	TypeGeneric AgentType = "generic"
)

// IsValid reports whether the type is a known agent type.
func (t AgentType) IsValid() bool {
	switch t {
	case TypeClaude, TypeCodex, TypeGemini, TypeGeneric:
		return true
	}
	return false
}

// ParseAgentType decodes a stored agent type.
func ParseAgentType(raw string) (AgentType, error) {
	t := AgentType(raw)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown agent type %q", raw)
	}
	return t, nil
}

// TaskStatus is the state of a work item.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskClaimed   TaskStatus = "claimed"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskAbandoned TaskStatus = "abandoned"
)

// IsValid reports whether the status is a known task state.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskClaimed, TaskDone, TaskFailed, TaskAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the current attempt.
// Abandoned is transient: recovery may flip it back to pending.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskFailed
}

// ParseTaskStatus decodes a stored task status.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown task status %q", raw)
	}
	return s, nil
}

// Priority bounds for tasks. Higher is more urgent.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// DefaultMaxRetries is how many times an abandoned task is re-queued
// before it stays abandoned for human attention.
const DefaultMaxRetries = 3

// Agent is a registered participant process.
type Agent struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	AgentType       AgentType         `json:"agent_type"`
	PID             *int              `json:"pid,omitempty"`
	Status          AgentStatus       `json:"status"`
	LastHeartbeatAt time.Time         `json:"last_heartbeat_at"`
	RegisteredAt    time.Time         `json:"registered_at"`
	CurrentTaskID   string            `json:"current_task_id,omitempty"`
	Capabilities    []string          `json:"capabilities,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	LastProgress    string            `json:"last_progress,omitempty"`
	Role            string            `json:"role,omitempty"`
}

// Task is a unit of work in the shared queue.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	CreatedBy   string     `json:"created_by,omitempty"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	ClaimTerm   *int64     `json:"claim_term,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	Tags        []string   `json:"tags,omitempty"`
	Context     string     `json:"context,omitempty"`
	Version     int        `json:"version"`
	DependsOn   []string   `json:"depends_on,omitempty"`
}

// Leader is the singleton election record.
type Leader struct {
	AgentID        string    `json:"agent_id"`
	Term           int64     `json:"term"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
	ElectedAt      time.Time `json:"elected_at"`
}

// IsExpired reports whether the lease has lapsed at the given instant.
func (l *Leader) IsExpired(now time.Time) bool {
	return now.After(l.LeaseExpiresAt)
}

// Message is a record in the inter-agent mailbox. An empty ToAgent
// means broadcast.
type Message struct {
	ID          int64      `json:"id"`
	FromAgent   string     `json:"from_agent"`
	ToAgent     string     `json:"to_agent,omitempty"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// IsBroadcast reports whether the message is addressed to everyone.
func (m *Message) IsBroadcast() bool { return m.ToAgent == "" }

// Event is an append-only audit log entry.
type Event struct {
	ID        int64             `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AgentID   string            `json:"agent_id,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Event types appended by the core. The set is open: readers must not
// assume it is exhaustive.
const (
	EventAgentJoined       = "agent_joined"
	EventAgentLeft         = "agent_left"
	EventAgentDied         = "agent_died"
	EventAgentUnresponsive = "agent_unresponsive"
	EventTaskCreated       = "task_created"
	EventTaskClaimed       = "task_claimed"
	EventTaskCompleted     = "task_completed"
	EventTaskFailed        = "task_failed"
	EventTaskAbandoned     = "task_abandoned"
	EventLeaderElected     = "leader_elected"
	EventFileLocked        = "file_locked"
	EventFileUnlocked      = "file_unlocked"
)

// EventFilter narrows ListEvents results. Zero values mean "any".
type EventFilter struct {
	Type    string
	AgentID string
	TaskID  string
	Since   time.Time
	Limit   int
}

// TaskFilter narrows ListTasks results. Zero values mean "any".
type TaskFilter struct {
	Status    TaskStatus
	ClaimedBy string
	Tag       string
}

// FileLock is an advisory claim on a path. The core records locks but
// does not enforce them at the filesystem level.
type FileLock struct {
	FilePath string    `json:"file_path"`
	AgentID  string    `json:"agent_id"`
	LockedAt time.Time `json:"locked_at"`
}

// TaskCounts is a per-status tally of the queue.
type TaskCounts map[TaskStatus]int

// RecoveryReport summarizes one recovery sweep.
type RecoveryReport struct {
	DeadAgents    []string `json:"dead_agents"`
	StaleTasks    int      `json:"stale_tasks"`
	RequeuedTasks int      `json:"requeued_tasks"`
}
