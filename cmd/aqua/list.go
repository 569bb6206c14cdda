package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var (
	listStatus string
	listMine   bool
	listTag    string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		filter := types.TaskFilter{Tag: listTag}
		if listStatus != "" {
			status, err := types.ParseTaskStatus(listStatus)
			if err != nil {
				fatal(err)
			}
			filter.Status = status
		}
		if listMine {
			filter.ClaimedBy = currentAgentID()
		}

		tasks, err := store.ListTasks(rootCtx, filter)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			if tasks == nil {
				tasks = []*types.Task{}
			}
			outputJSON(tasks)
			return
		}
		if len(tasks) == 0 {
			fmt.Println(ui.Muted("no tasks"))
			return
		}
		for _, task := range tasks {
			line := fmt.Sprintf("%s  [%s] p%d  %s",
				ui.Accent(task.ID), ui.TaskStatus(task.Status), task.Priority,
				util.Truncate(task.Title, 60))
			if task.ClaimedBy != "" {
				line += ui.Muted("  @" + task.ClaimedBy)
			}
			fmt.Println(line)
		}
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status: pending, claimed, done, failed, abandoned")
	listCmd.Flags().BoolVarP(&listMine, "mine", "m", false, "only tasks claimed by this session's agent")
	listCmd.Flags().StringVarP(&listTag, "tag", "t", "", "filter by tag")
	rootCmd.AddCommand(listCmd)
}
