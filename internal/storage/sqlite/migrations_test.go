package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/untoldecay/aqua/internal/storage"
)

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)

	// The schema is already current; a second run must be a no-op, not
	// a duplicate-column failure.
	if err := runMigrations(s.db); err != nil {
		t.Fatalf("re-running migrations failed: %v", err)
	}
	if err := runMigrations(s.db); err != nil {
		t.Fatalf("third migration run failed: %v", err)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aqua.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	seedAgent(t, s, "a1", "brave-otter")
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = s2.Close() }()

	if _, err := s2.GetAgent(ctx, "a1"); err != nil {
		t.Fatalf("agent lost across reopen: %v", err)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	_, err := Open(context.Background(), path)
	if !errors.Is(err, storage.ErrNotInitialized) {
		t.Fatalf("error = %v, want ErrNotInitialized", err)
	}
}

func TestNewerSchemaVersionRefused(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aqua.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE schema_version SET version = ?`, schemaVersion+10); err != nil {
		t.Fatalf("failed to bump version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = Open(ctx, path)
	if !errors.Is(err, storage.ErrSchemaVersion) {
		t.Fatalf("error = %v, want ErrSchemaVersion", err)
	}
}
