package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/storage/sqlite"
	"github.com/untoldecay/aqua/internal/types"
)

// fakeProber reports a fixed liveness answer.
type fakeProber struct {
	alive bool
}

func (p fakeProber) Alive(int) bool { return p.alive }

func newTestCoordinator(t *testing.T, prober ProcessProber, opts Options) (*Coordinator, storage.Storage) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aqua.db")
	store, err := sqlite.New(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, prober, opts), store
}

func join(t *testing.T, c *Coordinator, name string) *types.Agent {
	t.Helper()
	res, err := c.Join(context.Background(), name, types.TypeGeneric, "", nil, nil)
	if err != nil {
		t.Fatalf("Join(%s) failed: %v", name, err)
	}
	return res.Agent
}

func addTask(t *testing.T, store storage.Storage, id, title string, priority int) {
	t.Helper()
	err := store.CreateTask(context.Background(), &types.Task{
		ID: id, Title: title, Priority: priority,
	})
	if err != nil {
		t.Fatalf("failed to add task %s: %v", id, err)
	}
}

func TestJoinFirstAgentBecomesLeader(t *testing.T) {
	c, _ := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	first, err := c.Join(ctx, "", types.TypeClaude, "backend", []string{"go"}, nil)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !first.IsLeader || first.Term != 1 {
		t.Fatalf("first join leader=%v term=%d, want leader at term 1", first.IsLeader, first.Term)
	}
	if first.Agent.Name == "" || len(first.Agent.ID) != 8 {
		t.Fatalf("agent = %+v, want generated name and 8-char id", first.Agent)
	}

	second, err := c.Join(ctx, "second", types.TypeGeneric, "", nil, nil)
	if err != nil {
		t.Fatalf("second Join failed: %v", err)
	}
	if second.IsLeader {
		t.Fatal("second agent should not displace a live leader")
	}
}

func TestClaimNextTaskCommitsPointer(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	agent := join(t, c, "worker")
	addTask(t, store, "t1", "low", 2)
	addTask(t, store, "t2", "high", 9)

	res, err := c.ClaimNextTask(ctx, agent.ID)
	if err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	if res == nil || res.Task.ID != "t2" {
		t.Fatalf("claimed = %v, want the high-priority task", res)
	}
	if res.Task.ClaimTerm == nil || *res.Task.ClaimTerm != 1 {
		t.Fatalf("claim term = %v, want 1", res.Task.ClaimTerm)
	}

	got, err := store.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.CurrentTaskID != "t2" {
		t.Fatalf("agent pointer = %q, want t2", got.CurrentTaskID)
	}

	// One task at a time.
	if _, err := c.ClaimNextTask(ctx, agent.ID); err == nil {
		t.Fatal("second claim with a task in hand should fail")
	}
}

func TestClaimNextTaskEmptyQueue(t *testing.T) {
	c, _ := newTestCoordinator(t, fakeProber{alive: true}, Options{})

	agent := join(t, c, "worker")
	res, err := c.ClaimNextTask(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	if res != nil {
		t.Fatalf("res = %v, want nil on empty queue", res)
	}
}

func TestCompleteCurrentTask(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	agent := join(t, c, "worker")
	addTask(t, store, "t1", "work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}

	task, err := c.CompleteCurrentTask(ctx, agent.ID, "shipped")
	if err != nil {
		t.Fatalf("CompleteCurrentTask failed: %v", err)
	}
	if task.Status != types.TaskDone || task.Result != "shipped" {
		t.Fatalf("task = %+v, want done with result", task)
	}

	got, _ := store.GetAgent(ctx, agent.ID)
	if got.CurrentTaskID != "" {
		t.Fatalf("pointer = %q, want cleared after completion", got.CurrentTaskID)
	}

	if _, err := c.CompleteCurrentTask(ctx, agent.ID, "again"); !errors.Is(err, ErrNoCurrentTask) {
		t.Fatalf("error = %v, want ErrNoCurrentTask", err)
	}
}

func TestFailCurrentTask(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	agent := join(t, c, "worker")
	addTask(t, store, "t1", "work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}

	task, err := c.FailCurrentTask(ctx, agent.ID, "tests red")
	if err != nil {
		t.Fatalf("FailCurrentTask failed: %v", err)
	}
	if task.Status != types.TaskFailed || task.Error != "tests red" {
		t.Fatalf("task = %+v, want failed with reason", task)
	}
}

func TestLeaveReleasesEverything(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	agent := join(t, c, "worker")
	addTask(t, store, "t1", "work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	if _, err := store.LockFile(ctx, "src/main.go", agent.ID); err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}

	if err := c.Leave(ctx, agent.ID, false); !errors.Is(err, ErrTaskHeld) {
		t.Fatalf("Leave with held task = %v, want ErrTaskHeld", err)
	}
	if err := c.Leave(ctx, agent.ID, true); err != nil {
		t.Fatalf("forced Leave failed: %v", err)
	}

	if _, err := store.GetAgent(ctx, agent.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("agent lookup = %v, want ErrNotFound after leave", err)
	}
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != types.TaskPending {
		t.Fatalf("task status = %q, want requeued to pending", task.Status)
	}
	locks, _ := store.ListLocks(ctx)
	if len(locks) != 0 {
		t.Fatalf("locks = %v, want released", locks)
	}
}

func TestRecoveryReapsDeadAgent(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: false},
		Options{DeadThreshold: 10 * time.Millisecond})
	ctx := context.Background()

	agent := join(t, c, "doomed")
	addTask(t, store, "t1", "work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	if _, err := store.LockFile(ctx, "src/main.go", agent.ID); err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	report, err := c.RunRecovery(ctx)
	if err != nil {
		t.Fatalf("RunRecovery failed: %v", err)
	}
	if len(report.DeadAgents) != 1 || report.DeadAgents[0] != agent.ID {
		t.Fatalf("dead agents = %v, want [%s]", report.DeadAgents, agent.ID)
	}
	if report.RequeuedTasks != 1 {
		t.Fatalf("requeued = %d, want 1", report.RequeuedTasks)
	}

	got, _ := store.GetAgent(ctx, agent.ID)
	if got.Status != types.AgentDead || got.CurrentTaskID != "" {
		t.Fatalf("agent = %+v, want dead with cleared pointer", got)
	}
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != types.TaskPending || task.ClaimedBy != "" {
		t.Fatalf("task = %+v, want released back to pending", task)
	}
	locks, _ := store.ListLocks(ctx)
	if len(locks) != 0 {
		t.Fatalf("locks = %v, want released on death", locks)
	}
}

func TestRecoverySparesLiveProcess(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true},
		Options{DeadThreshold: 10 * time.Millisecond})
	ctx := context.Background()

	agent := join(t, c, "slow-but-alive")
	addTask(t, store, "t1", "long computation", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	report, err := c.RunRecovery(ctx)
	if err != nil {
		t.Fatalf("RunRecovery failed: %v", err)
	}
	if len(report.DeadAgents) != 0 {
		t.Fatalf("dead agents = %v, want none while the process answers", report.DeadAgents)
	}

	got, _ := store.GetAgent(ctx, agent.ID)
	if got.Status == types.AgentDead {
		t.Fatal("live process should not be marked dead on heartbeat staleness alone")
	}
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != types.TaskClaimed {
		t.Fatalf("task = %q, want claim kept", task.Status)
	}

	events, err := store.ListEvents(ctx, types.EventFilter{Type: types.EventAgentUnresponsive})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("unresponsive events = %d, want 1", len(events))
	}
}

func TestRecoveryReleasesStaleClaims(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true},
		Options{ClaimTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	agent := join(t, c, "stuck")
	addTask(t, store, "t1", "stuck work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	report, err := c.RunRecovery(ctx)
	if err != nil {
		t.Fatalf("RunRecovery failed: %v", err)
	}
	if report.StaleTasks != 1 || report.RequeuedTasks != 1 {
		t.Fatalf("report = %+v, want 1 stale claim released and requeued", report)
	}

	task, _ := store.GetTask(ctx, "t1")
	if task.Status != types.TaskPending {
		t.Fatalf("task = %q, want pending after stale claim release", task.Status)
	}
	got, _ := store.GetAgent(ctx, agent.ID)
	if got.CurrentTaskID != "" {
		t.Fatalf("pointer = %q, want cleared", got.CurrentTaskID)
	}
}

func TestRecoveryPhasesRunIndependently(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: false},
		Options{DeadThreshold: 10 * time.Millisecond, ClaimTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	agent := join(t, c, "doomed")
	addTask(t, store, "t1", "orphaned work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	dead, err := c.RecoverDeadAgents(ctx)
	if err != nil {
		t.Fatalf("RecoverDeadAgents failed: %v", err)
	}
	if len(dead) != 1 || dead[0] != agent.ID {
		t.Fatalf("dead agents = %v, want [%s]", dead, agent.ID)
	}

	// The phase releases the task but leaves requeueing to the full
	// sweep, so the task stays abandoned here.
	task, _ := store.GetTask(ctx, "t1")
	if task.Status != types.TaskAbandoned {
		t.Fatalf("task = %q, want abandoned after the dead-agent phase", task.Status)
	}

	stale, err := c.RecoverStaleTasks(ctx)
	if err != nil {
		t.Fatalf("RecoverStaleTasks failed: %v", err)
	}
	if stale != 0 {
		t.Fatalf("stale = %d, want 0 once the claim is already released", stale)
	}

	// The stale-claim phase works standalone too, without the
	// dead-agent phase running first.
	helper := join(t, c, "stuck")
	addTask(t, store, "t2", "stale work", 5)
	if _, err := c.ClaimNextTask(ctx, helper.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	stale, err = c.RecoverStaleTasks(ctx)
	if err != nil {
		t.Fatalf("RecoverStaleTasks failed: %v", err)
	}
	if stale != 1 {
		t.Fatalf("stale = %d, want 1", stale)
	}
	task, _ = store.GetTask(ctx, "t2")
	if task.Status != types.TaskAbandoned {
		t.Fatalf("task = %q, want abandoned until the full sweep requeues", task.Status)
	}
}

func TestRecoveryHonorsRetryCap(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true},
		Options{ClaimTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	agent := join(t, c, "flaky")
	if err := store.CreateTask(ctx, &types.Task{ID: "t1", Title: "cursed", MaxRetries: 1}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := c.RunRecovery(ctx); err != nil {
		t.Fatalf("RunRecovery failed: %v", err)
	}

	task, _ := store.GetTask(ctx, "t1")
	if task.Status != types.TaskAbandoned {
		t.Fatalf("task = %q, want abandoned once at the retry cap", task.Status)
	}
	if res, err := c.ClaimNextTask(ctx, agent.ID); err != nil || res != nil {
		t.Fatalf("claim = %v/%v, abandoned task must not be claimable", res, err)
	}
}

func TestRefreshRestoresContext(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	agent := join(t, c, "resumer")
	addTask(t, store, "t1", "work", 5)
	if _, err := c.ClaimNextTask(ctx, agent.ID); err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	if err := c.ReportProgress(ctx, agent.ID, "step 2 of 5"); err != nil {
		t.Fatalf("ReportProgress failed: %v", err)
	}

	res, err := c.Refresh(ctx, agent.ID)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Task == nil || res.Task.ID != "t1" {
		t.Fatalf("refresh task = %v, want t1", res.Task)
	}
	if res.Agent.LastProgress != "step 2 of 5" {
		t.Fatalf("progress = %q, want the checkpoint", res.Agent.LastProgress)
	}
	if !res.IsLeader {
		t.Fatal("sole agent should hold the lease after refresh")
	}
}

func TestRefreshRevivesDeadAgent(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	agent := join(t, c, "lazarus")
	if err := store.UpdateAgentStatus(ctx, agent.ID, types.AgentDead); err != nil {
		t.Fatalf("UpdateAgentStatus failed: %v", err)
	}

	res, err := c.Refresh(ctx, agent.ID)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Agent.Status != types.AgentActive {
		t.Fatalf("status = %q, want active after refresh", res.Agent.Status)
	}
}

func TestRoleAwareClaim(t *testing.T) {
	c, store := newTestCoordinator(t, fakeProber{alive: true}, Options{})
	ctx := context.Background()

	res, err := c.Join(ctx, "styler", types.TypeGeneric, "frontend", nil, nil)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	addTask(t, store, "backend-task", "api work", 9)
	if err := store.CreateTask(ctx, &types.Task{
		ID: "css-task", Title: "css fix", Priority: 2, Tags: []string{"frontend"},
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	claim, err := c.ClaimNextTask(ctx, res.Agent.ID)
	if err != nil {
		t.Fatalf("ClaimNextTask failed: %v", err)
	}
	if claim.Task.ID != "css-task" || !claim.RoleMatched {
		t.Fatalf("claim = %+v, want the role-tagged task", claim)
	}
}
