package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/ui"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Run a recovery sweep now",
	Long: `Marks agents with stale heartbeats and dead processes as gone,
releases their tasks and locks, frees claims older than the claim
timeout, and requeues released tasks that are under their retry cap.
The daemon runs this periodically; the command runs one sweep by hand.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		report, err := coord.RunRecovery(rootCtx)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		if len(report.DeadAgents) == 0 && report.StaleTasks == 0 && report.RequeuedTasks == 0 {
			fmt.Println(ui.Success("nothing to recover"))
			return
		}
		if len(report.DeadAgents) > 0 {
			fmt.Println(ui.Warn("reaped dead agents: %s", strings.Join(report.DeadAgents, ", ")))
		}
		if report.StaleTasks > 0 {
			fmt.Println(ui.Warn("released %d stale claims", report.StaleTasks))
		}
		if report.RequeuedTasks > 0 {
			fmt.Println(ui.Success("requeued %d tasks", report.RequeuedTasks))
		}
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
