package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var claimCmd = &cobra.Command{
	Use:   "claim [task-id]",
	Short: "Claim the next task, or a specific one",
	Long: `Without arguments, claims the best pending task for this agent:
highest priority first, oldest first on ties, skipping tasks whose
dependencies are not done. An agent with a role prefers tasks tagged
with it. With a task id, claims exactly that task.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		if len(args) == 1 {
			task, err := coord.ClaimTask(rootCtx, agentID, args[0])
			if err != nil {
				fatal(err)
			}
			if jsonOutput {
				outputJSON(task)
				return
			}
			fmt.Println(ui.Success("claimed %s %s", ui.Accent(task.ID),
				util.Truncate(task.Title, 60)))
			return
		}

		res, err := coord.ClaimNextTask(rootCtx, agentID)
		if err != nil {
			fatal(err)
		}
		if res == nil {
			if jsonOutput {
				outputJSON(map[string]any{"task": nil})
				return
			}
			fmt.Println(ui.Muted("no claimable tasks"))
			return
		}
		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Println(ui.Success("claimed %s %s", ui.Accent(res.Task.ID),
			util.Truncate(res.Task.Title, 60)))
		if res.Task.Context != "" {
			fmt.Println(ui.Muted("  context: " + res.Task.Context))
		}
	},
}

func init() {
	rootCmd.AddCommand(claimCmd)
}
