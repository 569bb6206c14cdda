package sqlite

import (
	"context"
	"testing"
)

func TestLockFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	seedAgent(t, s, "a2", "calm-heron")

	ok, err := s.LockFile(ctx, "src/parser.go", "a1")
	if err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}
	if !ok {
		t.Fatal("first lock should succeed")
	}

	// Re-locking your own path is a success, not a conflict.
	ok, err = s.LockFile(ctx, "src/parser.go", "a1")
	if err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}
	if !ok {
		t.Fatal("re-lock by holder should succeed")
	}

	ok, err = s.LockFile(ctx, "src/parser.go", "a2")
	if err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}
	if ok {
		t.Fatal("lock held by a1 should not be granted to a2")
	}

	lock, err := s.GetFileLock(ctx, "src/parser.go")
	if err != nil {
		t.Fatalf("GetFileLock failed: %v", err)
	}
	if lock == nil || lock.AgentID != "a1" {
		t.Fatalf("lock = %+v, want held by a1", lock)
	}
}

func TestUnlockFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	seedAgent(t, s, "a2", "calm-heron")

	if _, err := s.LockFile(ctx, "src/parser.go", "a1"); err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}

	ok, err := s.UnlockFile(ctx, "src/parser.go", "a2")
	if err != nil {
		t.Fatalf("UnlockFile failed: %v", err)
	}
	if ok {
		t.Fatal("a2 should not release a1's lock")
	}

	ok, err = s.UnlockFile(ctx, "src/parser.go", "a1")
	if err != nil {
		t.Fatalf("UnlockFile failed: %v", err)
	}
	if !ok {
		t.Fatal("holder unlock should succeed")
	}

	lock, _ := s.GetFileLock(ctx, "src/parser.go")
	if lock != nil {
		t.Fatalf("lock = %+v, want released", lock)
	}
}

func TestReleaseAgentLocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "a1", "brave-otter")
	seedAgent(t, s, "a2", "calm-heron")
	for _, path := range []string{"a.go", "b.go"} {
		if _, err := s.LockFile(ctx, path, "a1"); err != nil {
			t.Fatalf("LockFile failed: %v", err)
		}
	}
	if _, err := s.LockFile(ctx, "c.go", "a2"); err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}

	n, err := s.ReleaseAgentLocks(ctx, "a1")
	if err != nil {
		t.Fatalf("ReleaseAgentLocks failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("released = %d, want 2", n)
	}

	remaining, err := s.ListLocks(ctx)
	if err != nil {
		t.Fatalf("ListLocks failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].AgentID != "a2" {
		t.Fatalf("remaining = %v, want just a2's lock", remaining)
	}

	mine, err := s.AgentLocks(ctx, "a2")
	if err != nil {
		t.Fatalf("AgentLocks failed: %v", err)
	}
	if len(mine) != 1 || mine[0].FilePath != "c.go" {
		t.Fatalf("a2 locks = %v, want c.go", mine)
	}
}
