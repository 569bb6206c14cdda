package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/ui"
)

var progressCmd = &cobra.Command{
	Use:   "progress <note...>",
	Short: "Record a progress checkpoint",
	Long:  "Stores a free-form checkpoint on the agent and its current task. Counts as a heartbeat; `aqua refresh` replays it after a restart.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		note := strings.Join(args, " ")
		if err := coord.ReportProgress(rootCtx, agentID, note); err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(map[string]any{"progress": note})
			return
		}
		fmt.Println(ui.Success("progress recorded"))
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Heartbeat and restore this agent's context",
	Long:  "Refreshes the heartbeat, renews the leader lease opportunistically, and prints the current task and last progress checkpoint so a restarted agent can resume.",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		res, err := coord.Refresh(rootCtx, agentID)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		leaderMark := ""
		if res.IsLeader {
			leaderMark = " " + ui.Bold("(leader)")
		}
		fmt.Println(ui.Success("%s refreshed%s", ui.Accent(res.Agent.Name), leaderMark))
		if res.Task != nil {
			fmt.Printf("  Current task: %s %s\n", res.Task.ID, res.Task.Title)
		}
		if res.Agent.LastProgress != "" {
			fmt.Printf("  Last progress: %s\n", res.Agent.LastProgress)
		}
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(refreshCmd)
}
