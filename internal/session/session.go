// Package session maps a terminal to its joined agent. Each shell or
// agent process gets a session identifier; the agent id it joined as is
// persisted under .aqua/sessions/ so consecutive CLI invocations from
// the same terminal act as the same agent.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/untoldecay/aqua/internal/config"
)

// ErrNotJoined is returned when no agent identity is stored for the
// current session. Run `aqua join` first.
var ErrNotJoined = errors.New("not joined")

// Environment variables consulted for identity.
const (
	EnvAgentID   = "AQUA_AGENT_ID"
	EnvSessionID = "AQUA_SESSION_ID"
)

// ID returns the session identifier for this terminal.
//
// Signals, in priority order: AQUA_SESSION_ID (explicit override),
// AQUA_AGENT_ID (the agent already knows who it is), the controlling
// TTY device (unique per terminal window), then "default". PPID is
// deliberately not used: every spawned subprocess has a different
// parent, which would fracture one agent into many sessions. Headless
// AI agents share the "default" session, which means one agent per
// project directory unless they export AQUA_SESSION_ID.
func ID() string {
	if sid := os.Getenv(EnvSessionID); sid != "" {
		return sid
	}
	if aid := os.Getenv(EnvAgentID); aid != "" {
		return "agent_" + aid
	}
	if tty := ttyName(); tty != "" {
		return strings.ReplaceAll(tty, "/", "_")
	}
	return "default"
}

// ttyName resolves the controlling terminal device, or "" when stdin is
// not a terminal.
func ttyName() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	// Linux and most unixes expose the device through /proc or /dev/fd.
	for _, link := range []string{"/proc/self/fd/0", "/dev/fd/0"} {
		if target, err := os.Readlink(link); err == nil && strings.HasPrefix(target, "/dev/") {
			return target
		}
	}
	return ""
}

// agentFilePath returns the per-session identity file, creating the
// sessions directory as needed.
func agentFilePath() (string, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, config.AquaDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return filepath.Join(dir, ID()+".agent"), nil
}

// CurrentAgentID resolves the joined agent for this session.
// AQUA_AGENT_ID wins over the session file. Returns ErrNotJoined when
// neither is set.
func CurrentAgentID() (string, error) {
	if aid := os.Getenv(EnvAgentID); aid != "" {
		return aid, nil
	}
	path, err := agentFilePath()
	if err != nil {
		return "", ErrNotJoined
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", ErrNotJoined
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return "", ErrNotJoined
	}
	return id, nil
}

// Store persists the agent id for this session.
func Store(agentID string) error {
	path, err := agentFilePath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(agentID+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to store agent id: %w", err)
	}
	return nil
}

// Clear removes the stored identity for this session. Missing files
// are not an error.
func Clear() error {
	path, err := agentFilePath()
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear agent id: %w", err)
	}
	return nil
}
