// Package coordinator implements the agent-facing coordination
// protocol on top of the storage layer: join/leave lifecycle, the
// atomic claim flow, leader lease maintenance, and crash recovery.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/util"
)

// ErrNoCurrentTask is returned when done/fail is invoked by an agent
// with no claimed task.
var ErrNoCurrentTask = errors.New("no current task")

// ErrTaskHeld is returned by Leave when the agent still holds a claimed
// task and force was not set.
var ErrTaskHeld = errors.New("agent holds a claimed task")

// ProcessProber reports whether a PID belongs to a live process.
// Recovery uses it to tell a crashed agent from a busy one.
type ProcessProber interface {
	Alive(pid int) bool
}

// Options are the coordination timing knobs.
type Options struct {
	// DeadThreshold is how stale a heartbeat must be before recovery
	// considers the agent gone.
	DeadThreshold time.Duration

	// ClaimTimeout is how long a task may stay claimed before recovery
	// treats the claim as stuck.
	ClaimTimeout time.Duration

	// LeaderLease is the leader lease duration granted on election and
	// renewal.
	LeaderLease time.Duration
}

// Default timing values, matching the documented configuration.
const (
	DefaultDeadThreshold = 300 * time.Second
	DefaultClaimTimeout  = 1800 * time.Second
	DefaultLeaderLease   = 30 * time.Second
)

// claimAttempts bounds re-selection when a picked task is snatched by
// another agent between selection and the conditional update.
const claimAttempts = 5

// Coordinator ties the storage layer to the coordination protocol.
type Coordinator struct {
	store  storage.Storage
	prober ProcessProber
	opts   Options
}

// New creates a coordinator. A nil prober falls back to the platform
// prober; zero option fields get defaults.
func New(store storage.Storage, prober ProcessProber, opts Options) *Coordinator {
	if prober == nil {
		prober = defaultProber{}
	}
	if opts.DeadThreshold == 0 {
		opts.DeadThreshold = DefaultDeadThreshold
	}
	if opts.ClaimTimeout == 0 {
		opts.ClaimTimeout = DefaultClaimTimeout
	}
	if opts.LeaderLease == 0 {
		opts.LeaderLease = DefaultLeaderLease
	}
	return &Coordinator{store: store, prober: prober, opts: opts}
}

// JoinResult describes a successful join.
type JoinResult struct {
	Agent    *types.Agent `json:"agent"`
	IsLeader bool         `json:"is_leader"`
	Term     int64        `json:"term"`
}

// Join registers a new agent and immediately stands it in the leader
// election, so the first agent in an empty project becomes leader.
func (c *Coordinator) Join(ctx context.Context, name string, agentType types.AgentType, role string, capabilities []string, metadata map[string]string) (*JoinResult, error) {
	if name == "" {
		name = util.AgentName()
	}
	if agentType == "" {
		agentType = types.TypeGeneric
	}
	pid := os.Getpid()
	agent := &types.Agent{
		ID:           util.ShortID(),
		Name:         name,
		AgentType:    agentType,
		PID:          &pid,
		Status:       types.AgentActive,
		Capabilities: capabilities,
		Metadata:     metadata,
		Role:         role,
	}
	if err := c.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}
	_ = c.store.LogEvent(ctx, types.EventAgentJoined, agent.ID, "",
		map[string]string{"name": agent.Name, "type": string(agentType)})

	// The store appends the leader_elected event itself when the
	// election is won.
	won, term, err := c.store.TryBecomeLeader(ctx, agent.ID, c.opts.LeaderLease)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Agent: agent, IsLeader: won, Term: term}, nil
}

// Leave deregisters an agent: its claimed task is released back to the
// queue, its file locks are dropped, and the agent row is removed.
// Leaving with a claimed task requires force; the forced leave abandons
// the task first.
func (c *Coordinator) Leave(ctx context.Context, agentID string, force bool) error {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.CurrentTaskID != "" && !force {
		return fmt.Errorf("%w: %s (finish it or leave --force)", ErrTaskHeld, agent.CurrentTaskID)
	}

	err = c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if agent.CurrentTaskID != "" {
			if err := tx.AbandonTask(ctx, agent.CurrentTaskID, "agent left"); err != nil &&
				!errors.Is(err, storage.ErrClaimFailed) {
				return err
			}
			if err := tx.LogEvent(ctx, types.EventTaskAbandoned, agentID,
				agent.CurrentTaskID, map[string]string{"reason": "agent left"}); err != nil {
				return err
			}
		}
		if _, err := tx.ReleaseAgentLocks(ctx, agentID); err != nil {
			return err
		}
		return tx.LogEvent(ctx, types.EventAgentLeft, agentID, "", nil)
	})
	if err != nil {
		return err
	}

	if _, err := c.store.RequeueAbandoned(ctx); err != nil {
		return err
	}
	return c.store.DeleteAgent(ctx, agentID)
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Task *types.Task `json:"task"`

	// RoleMatched reports whether the task was selected because it
	// carries the agent's role tag, as opposed to a queue-head fallback.
	RoleMatched bool `json:"role_matched"`
}

// ClaimNextTask picks the best claimable task for the agent and claims
// it atomically. Selection honors priority order, dependency gating,
// and role preference; the claim itself and the agent's task pointer
// commit in one transaction. Returns nil when the queue has nothing
// claimable.
func (c *Coordinator) ClaimNextTask(ctx context.Context, agentID string) (*ClaimResult, error) {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.CurrentTaskID != "" {
		return nil, fmt.Errorf("agent already has task %s claimed", agent.CurrentTaskID)
	}
	if err := c.store.Heartbeat(ctx, agentID); err != nil {
		return nil, err
	}
	term, err := c.store.CurrentTerm(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		task, matched, err := c.store.NextPendingTaskForRole(ctx, agent.Role)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, nil
		}

		err = c.claimInTx(ctx, task.ID, agentID, term)
		if errors.Is(err, storage.ErrClaimFailed) {
			// Someone else won this row; pick again.
			continue
		}
		if err != nil {
			return nil, err
		}
		claimed, err := c.store.GetTask(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		return &ClaimResult{Task: claimed, RoleMatched: matched}, nil
	}
	return nil, fmt.Errorf("queue too contended: %w", storage.ErrClaimFailed)
}

// ClaimTask claims one specific task for the agent.
func (c *Coordinator) ClaimTask(ctx context.Context, agentID, taskID string) (*types.Task, error) {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.CurrentTaskID != "" {
		return nil, fmt.Errorf("agent already has task %s claimed", agent.CurrentTaskID)
	}
	if err := c.store.Heartbeat(ctx, agentID); err != nil {
		return nil, err
	}
	term, err := c.store.CurrentTerm(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.claimInTx(ctx, taskID, agentID, term); err != nil {
		return nil, err
	}
	return c.store.GetTask(ctx, taskID)
}

// claimInTx commits the pending-to-claimed transition, the agent's task
// pointer, and the audit event together.
func (c *Coordinator) claimInTx(ctx context.Context, taskID, agentID string, term int64) error {
	return c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.ClaimTask(ctx, taskID, agentID, term); err != nil {
			return err
		}
		if err := tx.UpdateAgentTask(ctx, agentID, taskID); err != nil {
			return err
		}
		return tx.LogEvent(ctx, types.EventTaskClaimed, agentID, taskID,
			map[string]string{"term": strconv.FormatInt(term, 10)})
	})
}

// CompleteCurrentTask marks the agent's claimed task done.
func (c *Coordinator) CompleteCurrentTask(ctx context.Context, agentID, result string) (*types.Task, error) {
	return c.finishCurrentTask(ctx, agentID, result, true)
}

// FailCurrentTask marks the agent's claimed task failed.
func (c *Coordinator) FailCurrentTask(ctx context.Context, agentID, reason string) (*types.Task, error) {
	return c.finishCurrentTask(ctx, agentID, reason, false)
}

func (c *Coordinator) finishCurrentTask(ctx context.Context, agentID, detail string, success bool) (*types.Task, error) {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.CurrentTaskID == "" {
		return nil, ErrNoCurrentTask
	}
	taskID := agent.CurrentTaskID

	err = c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if success {
			if err := tx.CompleteTask(ctx, taskID, agentID, detail); err != nil {
				return err
			}
		} else {
			if err := tx.FailTask(ctx, taskID, agentID, detail); err != nil {
				return err
			}
		}
		if err := tx.UpdateAgentTask(ctx, agentID, ""); err != nil {
			return err
		}
		eventType := types.EventTaskCompleted
		if !success {
			eventType = types.EventTaskFailed
		}
		return tx.LogEvent(ctx, eventType, agentID, taskID, nil)
	})
	if err != nil {
		return nil, err
	}
	if err := c.store.Heartbeat(ctx, agentID); err != nil {
		return nil, err
	}
	return c.store.GetTask(ctx, taskID)
}

// ReportProgress records a progress checkpoint on both the agent and
// its current task. Progress counts as a heartbeat.
func (c *Coordinator) ReportProgress(ctx context.Context, agentID, note string) error {
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	if err := c.store.UpdateAgentProgress(ctx, agentID, note); err != nil {
		return err
	}
	if agent.CurrentTaskID != "" {
		return c.store.UpdateTaskProgress(ctx, agent.CurrentTaskID, note)
	}
	return nil
}

// RefreshResult is what a resuming agent needs to pick up where it
// left off.
type RefreshResult struct {
	Agent    *types.Agent `json:"agent"`
	Task     *types.Task  `json:"task,omitempty"`
	IsLeader bool         `json:"is_leader"`
	Term     int64        `json:"term"`
}

// Refresh heartbeats, renews the leader lease opportunistically, and
// returns the agent's current context (its task and last progress).
func (c *Coordinator) Refresh(ctx context.Context, agentID string) (*RefreshResult, error) {
	if err := c.store.Heartbeat(ctx, agentID); err != nil {
		return nil, err
	}
	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == types.AgentDead {
		// A resumed agent that was swept dead comes back active.
		if err := c.store.UpdateAgentStatus(ctx, agentID, types.AgentActive); err != nil {
			return nil, err
		}
		agent.Status = types.AgentActive
	}

	won, term, err := c.store.TryBecomeLeader(ctx, agentID, c.opts.LeaderLease)
	if err != nil {
		return nil, err
	}

	res := &RefreshResult{Agent: agent, IsLeader: won, Term: term}
	if agent.CurrentTaskID != "" {
		task, err := c.store.GetTask(ctx, agent.CurrentTaskID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		res.Task = task
	}
	return res, nil
}

// RunRecovery performs one recovery sweep:
//
//  1. Agents with stale heartbeats whose process is gone are marked
//     dead; their task is released and their file locks dropped. A
//     stale agent whose PID still answers is only flagged unresponsive.
//  2. Claims older than the claim timeout are released regardless of
//     the owner's health.
//  3. Released tasks under their retry cap go back to pending.
//
// Failures on individual rows are recorded and skipped so one bad row
// cannot wedge the whole sweep.
func (c *Coordinator) RunRecovery(ctx context.Context) (*types.RecoveryReport, error) {
	report := &types.RecoveryReport{}

	dead, err := c.RecoverDeadAgents(ctx)
	if err != nil {
		return nil, err
	}
	report.DeadAgents = dead

	stale, err := c.RecoverStaleTasks(ctx)
	if err != nil {
		return nil, err
	}
	report.StaleTasks = stale

	requeued, err := c.store.RequeueAbandoned(ctx)
	if err != nil {
		return nil, err
	}
	report.RequeuedTasks = requeued
	return report, nil
}

// RecoverDeadAgents marks agents with stale heartbeats and dead
// processes as dead, releasing their task and file locks. It returns
// the ids of the agents it reaped.
func (c *Coordinator) RecoverDeadAgents(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	agents, err := c.store.ListAgents(ctx, "")
	if err != nil {
		return nil, err
	}
	var reaped []string
	for _, agent := range agents {
		if agent.Status == types.AgentDead {
			continue
		}
		if now.Sub(agent.LastHeartbeatAt) < c.opts.DeadThreshold {
			continue
		}
		if agent.PID != nil && c.prober.Alive(*agent.PID) {
			// Heartbeat is stale but the process answers: likely a long
			// computation. Never kill a live agent's claim on liveness
			// grounds alone.
			_ = c.store.LogEvent(ctx, types.EventAgentUnresponsive, agent.ID, "",
				map[string]string{"last_heartbeat": agent.LastHeartbeatAt.Format(time.RFC3339Nano)})
			continue
		}
		if err := c.reapDeadAgent(ctx, agent); err != nil {
			_ = c.store.LogEvent(ctx, "recovery_error", agent.ID, "",
				map[string]string{"error": err.Error()})
			continue
		}
		reaped = append(reaped, agent.ID)
	}
	return reaped, nil
}

// reapDeadAgent marks one agent dead and releases everything it held,
// atomically.
func (c *Coordinator) reapDeadAgent(ctx context.Context, agent *types.Agent) error {
	return c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.UpdateAgentStatus(ctx, agent.ID, types.AgentDead); err != nil {
			return err
		}
		if agent.CurrentTaskID != "" {
			if err := tx.AbandonTask(ctx, agent.CurrentTaskID, "agent died"); err != nil &&
				!errors.Is(err, storage.ErrClaimFailed) {
				return err
			}
			if err := tx.UpdateAgentTask(ctx, agent.ID, ""); err != nil {
				return err
			}
			if err := tx.LogEvent(ctx, types.EventTaskAbandoned, agent.ID,
				agent.CurrentTaskID, map[string]string{"reason": "agent died"}); err != nil {
				return err
			}
		}
		if _, err := tx.ReleaseAgentLocks(ctx, agent.ID); err != nil {
			return err
		}
		return tx.LogEvent(ctx, types.EventAgentDied, agent.ID, "", nil)
	})
}

// RecoverStaleTasks abandons claims older than the claim timeout,
// regardless of the owner's health, and returns how many it released.
// Requeueing the released tasks is RunRecovery's job.
func (c *Coordinator) RecoverStaleTasks(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	claimed, err := c.store.ListTasks(ctx, types.TaskFilter{Status: types.TaskClaimed})
	if err != nil {
		return 0, err
	}
	released := 0
	for _, task := range claimed {
		if task.ClaimedAt == nil || now.Sub(*task.ClaimedAt) < c.opts.ClaimTimeout {
			continue
		}
		owner := task.ClaimedBy
		err := c.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			if err := tx.AbandonTask(ctx, task.ID, "claim timed out"); err != nil {
				return err
			}
			if owner != "" {
				if err := tx.UpdateAgentTask(ctx, owner, ""); err != nil &&
					!errors.Is(err, storage.ErrNotFound) {
					return err
				}
			}
			return tx.LogEvent(ctx, types.EventTaskAbandoned, owner, task.ID,
				map[string]string{"reason": "claim timed out"})
		})
		if errors.Is(err, storage.ErrClaimFailed) {
			// The owner finished between listing and the update.
			continue
		}
		if err != nil {
			_ = c.store.LogEvent(ctx, "recovery_error", owner, task.ID,
				map[string]string{"error": err.Error()})
			continue
		}
		released++
	}
	return released, nil
}
