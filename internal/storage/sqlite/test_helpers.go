package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/aqua/internal/types"
)

// newTestStore creates a store on a fresh temp database and registers
// cleanup. Fails the test on any setup error.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aqua.db")
	s, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedAgent registers an agent with sane defaults.
func seedAgent(t *testing.T, s *Store, id, name string) *types.Agent {
	t.Helper()
	pid := 4242
	agent := &types.Agent{
		ID:        id,
		Name:      name,
		AgentType: types.TypeGeneric,
		PID:       &pid,
		Status:    types.AgentActive,
	}
	if err := s.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("failed to seed agent %s: %v", name, err)
	}
	return agent
}

// seedTask creates a pending task with the given priority.
func seedTask(t *testing.T, s *Store, id, title string, priority int) *types.Task {
	t.Helper()
	task := &types.Task{
		ID:       id,
		Title:    title,
		Priority: priority,
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("failed to seed task %s: %v", title, err)
	}
	return task
}

// seedTaskAt is seedTask with an explicit creation time, for ordering
// tests that need distinct created_at values.
func seedTaskAt(t *testing.T, s *Store, id, title string, priority int, createdAt time.Time) *types.Task {
	t.Helper()
	task := &types.Task{
		ID:        id,
		Title:     title,
		Priority:  priority,
		CreatedAt: createdAt,
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("failed to seed task %s: %v", title, err)
	}
	return task
}
