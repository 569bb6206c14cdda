// Command aqua coordinates multiple CLI AI agents working on one
// codebase through a shared SQLite database in .aqua/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/config"
	"github.com/untoldecay/aqua/internal/coordinator"
	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/storage/sqlite"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Globals shared by the command files. store and coord are populated
// lazily by requireStore; commands that do not touch the database
// never open it.
var (
	rootCtx    context.Context
	store      storage.Storage
	coord      *coordinator.Coordinator
	jsonOutput bool
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "aqua",
	Short: "Local coordination for CLI AI agents",
	Long: `Aqua coordinates multiple CLI AI agents (Claude Code, Codex, Gemini CLI)
working on the same codebase. Agents share a task queue, elect a leader,
exchange messages, and take advisory file locks through an embedded
SQLite database in .aqua/ with no server to run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		// Flags beat env and config file.
		if cmd.Flags().Changed("json") {
			config.Set("json", jsonOutput)
		}
		if dbPath != "" {
			config.Set("db", dbPath)
		}
		jsonOutput = config.GetBool("json")
		return nil
	},
}

// requireStore opens the project database, failing with a hint to run
// `aqua init` when it does not exist.
func requireStore() {
	if store != nil {
		return
	}
	s, err := sqlite.Open(rootCtx, config.DBPath(),
		sqlite.WithBusyTimeout(config.GetDuration("busy-timeout")))
	if err != nil {
		fatal(err)
	}
	store = s
	coord = coordinator.New(store, nil, coordinatorOptions())
}

func coordinatorOptions() coordinator.Options {
	return coordinator.Options{
		DeadThreshold: config.GetDuration("dead-threshold"),
		ClaimTimeout:  config.GetDuration("claim-timeout"),
		LeaderLease:   config.GetDuration("leader-lease"),
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCtx = ctx

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path override")

	err := rootCmd.Execute()
	if store != nil {
		_ = store.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
