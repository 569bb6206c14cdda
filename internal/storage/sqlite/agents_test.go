package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/types"
)

func TestCreateAndGetAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pid := 1234
	agent := &types.Agent{
		ID:           "a1",
		Name:         "brave-otter",
		AgentType:    types.TypeClaude,
		PID:          &pid,
		Capabilities: []string{"go", "sql"},
		Metadata:     map[string]string{"cwd": "/tmp/repo"},
		Role:         "backend",
	}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	got, err := s.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Name != "brave-otter" {
		t.Errorf("name = %q, want brave-otter", got.Name)
	}
	if got.AgentType != types.TypeClaude {
		t.Errorf("agent type = %q, want claude", got.AgentType)
	}
	if got.PID == nil || *got.PID != 1234 {
		t.Errorf("pid = %v, want 1234", got.PID)
	}
	if got.Status != types.AgentActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if len(got.Capabilities) != 2 || got.Capabilities[0] != "go" {
		t.Errorf("capabilities = %v, want [go sql]", got.Capabilities)
	}
	if got.Metadata["cwd"] != "/tmp/repo" {
		t.Errorf("metadata = %v, want cwd entry", got.Metadata)
	}
	if got.Role != "backend" {
		t.Errorf("role = %q, want backend", got.Role)
	}
	if got.LastHeartbeatAt.IsZero() || got.RegisteredAt.IsZero() {
		t.Error("timestamps should be defaulted on create")
	}
}

func TestCreateAgentNameConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	err := s.CreateAgent(ctx, &types.Agent{ID: "a2", Name: "brave-otter"})
	if !errors.Is(err, storage.ErrNameConflict) {
		t.Fatalf("duplicate name error = %v, want ErrNameConflict", err)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAgent(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	_, err = s.GetAgentByName(context.Background(), "nobody")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetAgentByName(t *testing.T) {
	s := newTestStore(t)

	seedAgent(t, s, "a1", "brave-otter")
	got, err := s.GetAgentByName(context.Background(), "brave-otter")
	if err != nil {
		t.Fatalf("GetAgentByName failed: %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("id = %q, want a1", got.ID)
	}
}

func TestListAgentsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	seedAgent(t, s, "a2", "calm-heron")
	if err := s.UpdateAgentStatus(ctx, "a2", types.AgentDead); err != nil {
		t.Fatalf("UpdateAgentStatus failed: %v", err)
	}

	all, err := s.ListAgents(ctx, "")
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all agents = %d, want 2", len(all))
	}

	active, err := s.ListAgents(ctx, types.AgentActive)
	if err != nil {
		t.Fatalf("ListAgents(active) failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a1" {
		t.Fatalf("active agents = %v, want just a1", active)
	}
}

func TestHeartbeatAdvancesTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	before, err := s.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := s.Heartbeat(ctx, "a1"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	after, err := s.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if !after.LastHeartbeatAt.After(before.LastHeartbeatAt) {
		t.Errorf("heartbeat did not advance: %v -> %v",
			before.LastHeartbeatAt, after.LastHeartbeatAt)
	}
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	s := newTestStore(t)

	err := s.Heartbeat(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAgentTaskPointer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	if err := s.UpdateAgentTask(ctx, "a1", "t1"); err != nil {
		t.Fatalf("UpdateAgentTask failed: %v", err)
	}
	got, _ := s.GetAgent(ctx, "a1")
	if got.CurrentTaskID != "t1" {
		t.Errorf("current task = %q, want t1", got.CurrentTaskID)
	}

	if err := s.UpdateAgentTask(ctx, "a1", ""); err != nil {
		t.Fatalf("clearing task pointer failed: %v", err)
	}
	got, _ = s.GetAgent(ctx, "a1")
	if got.CurrentTaskID != "" {
		t.Errorf("current task = %q, want cleared", got.CurrentTaskID)
	}
}

func TestUpdateAgentProgressRefreshesHeartbeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	before, _ := s.GetAgent(ctx, "a1")

	time.Sleep(5 * time.Millisecond)
	if err := s.UpdateAgentProgress(ctx, "a1", "halfway through parser"); err != nil {
		t.Fatalf("UpdateAgentProgress failed: %v", err)
	}

	after, _ := s.GetAgent(ctx, "a1")
	if after.LastProgress != "halfway through parser" {
		t.Errorf("progress = %q", after.LastProgress)
	}
	if !after.LastHeartbeatAt.After(before.LastHeartbeatAt) {
		t.Error("progress update should refresh the heartbeat")
	}
}

func TestDeleteAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	if err := s.DeleteAgent(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}
	if _, err := s.GetAgent(ctx, "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteAgent(ctx, "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("double delete error = %v, want ErrNotFound", err)
	}
}
