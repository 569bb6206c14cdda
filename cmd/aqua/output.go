package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/untoldecay/aqua/internal/coordinator"
	"github.com/untoldecay/aqua/internal/session"
	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/ui"
)

// outputJSON writes v as indented JSON to stdout.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(fmt.Errorf("failed to encode JSON: %w", err))
	}
}

// errorKind maps an error to the stable identifier scripted agents
// switch on in JSON output. Anything unrecognized is "internal".
func errorKind(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, session.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, coordinator.ErrNoCurrentTask):
		return "no_current_task"
	case errors.Is(err, coordinator.ErrTaskHeld):
		return "task_held"
	case errors.Is(err, storage.ErrNameConflict):
		return "name_conflict"
	case errors.Is(err, storage.ErrClaimFailed):
		return "claim_failed"
	case errors.Is(err, storage.ErrDependencyUnmet):
		return "dependency_unmet"
	case errors.Is(err, storage.ErrLeaderContention):
		return "leader_contention"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrBusy):
		return "busy"
	case errors.Is(err, storage.ErrSchemaVersion):
		return "schema_version"
	}
	return "internal"
}

// fatal prints an actionable message for known error kinds and exits.
// In JSON mode the error goes to stdout as {"error": kind, "message":
// prose} so scripted agents can switch on the kind; the human path
// prints the prose to stderr.
func fatal(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, storage.ErrNotInitialized):
		msg = "aqua not initialized. Run 'aqua init' first."
	case errors.Is(err, session.ErrNotJoined):
		msg = "no agent joined in this session. Run 'aqua join' first."
	case errors.Is(err, coordinator.ErrNoCurrentTask):
		msg = "no task claimed. Run 'aqua claim' first."
	case errors.Is(err, storage.ErrBusy):
		msg = "database busy; another agent is writing. Try again."
	}

	if jsonOutput {
		outputJSON(map[string]string{"error": errorKind(err), "message": msg})
	} else {
		fmt.Fprintln(os.Stderr, ui.Error("%s", msg))
	}
	if store != nil {
		_ = store.Close()
	}
	os.Exit(1)
}

// currentAgentID resolves this session's agent or exits with guidance.
func currentAgentID() string {
	id, err := session.CurrentAgentID()
	if err != nil {
		fatal(err)
	}
	return id
}
