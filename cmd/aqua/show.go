package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		task, err := store.GetTask(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(task)
			return
		}

		fmt.Println(ui.Header(task.Title))
		fmt.Printf("  ID:        %s\n", task.ID)
		fmt.Printf("  Status:    %s\n", ui.TaskStatus(task.Status))
		fmt.Printf("  Priority:  %d\n", task.Priority)
		fmt.Printf("  Created:   %s\n", util.TimeAgo(task.CreatedAt))
		if task.Description != "" {
			fmt.Printf("  About:     %s\n", task.Description)
		}
		if task.ClaimedBy != "" {
			claim := task.ClaimedBy
			if task.ClaimTerm != nil {
				claim += fmt.Sprintf(" (term %d)", *task.ClaimTerm)
			}
			fmt.Printf("  Claimed:   %s\n", claim)
		}
		if len(task.Tags) > 0 {
			fmt.Printf("  Tags:      %s\n", strings.Join(task.Tags, ", "))
		}
		if len(task.DependsOn) > 0 {
			fmt.Printf("  Depends:   %s\n", strings.Join(task.DependsOn, ", "))
			blocking, err := store.BlockingDependencies(rootCtx, task)
			if err == nil && len(blocking) > 0 {
				ids := make([]string, len(blocking))
				for i, dep := range blocking {
					ids[i] = dep.ID
				}
				fmt.Println(ui.Warn("blocked by: %s", strings.Join(ids, ", ")))
			}
		}
		if task.Result != "" {
			fmt.Printf("  Result:    %s\n", task.Result)
		}
		if task.Error != "" {
			fmt.Printf("  Error:     %s\n", task.Error)
		}
		if task.RetryCount > 0 {
			fmt.Printf("  Retries:   %d of %d\n", task.RetryCount, task.MaxRetries)
		}
		if task.Context != "" {
			fmt.Printf("  Context:   %s\n", task.Context)
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
