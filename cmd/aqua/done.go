package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var doneCmd = &cobra.Command{
	Use:   "done [result...]",
	Short: "Complete the current task",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		task, err := coord.CompleteCurrentTask(rootCtx, agentID, strings.Join(args, " "))
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Println(ui.Success("completed %s %s", ui.Accent(task.ID),
			util.Truncate(task.Title, 60)))
	},
}

var failCmd = &cobra.Command{
	Use:   "fail <reason...>",
	Short: "Fail the current task",
	Long:  "Marks the current task failed. Failed is terminal: recovery does not requeue it.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		task, err := coord.FailCurrentTask(rootCtx, agentID, strings.Join(args, " "))
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Println(ui.Warn("failed %s: %s", ui.Accent(task.ID), task.Error))
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(failCmd)
}
