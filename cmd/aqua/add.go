package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/config"
	"github.com/untoldecay/aqua/internal/session"
	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var (
	addDescription string
	addPriority    int
	addTags        string
	addDependsOn   string
	addMaxRetries  int
	addContext     string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to the queue",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		// Creator attribution is best effort: tasks can be added from a
		// terminal that never joined.
		createdBy, _ := session.CurrentAgentID()

		if !cmd.Flags().Changed("max-retries") {
			addMaxRetries = config.GetInt("max-retries")
		}

		task := &types.Task{
			ID:          util.ShortID(),
			Title:       strings.Join(args, " "),
			Description: addDescription,
			Priority:    addPriority,
			CreatedBy:   createdBy,
			MaxRetries:  addMaxRetries,
			Tags:        util.ParseTags(addTags),
			DependsOn:   util.ParseTags(addDependsOn),
			Context:     addContext,
		}
		if err := store.CreateTask(rootCtx, task); err != nil {
			fatal(err)
		}
		_ = store.LogEvent(rootCtx, types.EventTaskCreated, createdBy, task.ID,
			map[string]string{"title": task.Title})

		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Println(ui.Success("added task %s %s", ui.Accent(task.ID),
			util.Truncate(task.Title, 60)))
		if len(task.DependsOn) > 0 {
			fmt.Println(ui.Muted("  blocked by: " + strings.Join(task.DependsOn, ", ")))
		}
	},
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "task description")
	addCmd.Flags().IntVarP(&addPriority, "priority", "p", types.DefaultPriority,
		fmt.Sprintf("priority %d (low) to %d (high)", types.MinPriority, types.MaxPriority))
	addCmd.Flags().StringVarP(&addTags, "tags", "t", "", "comma-separated tags")
	addCmd.Flags().StringVar(&addDependsOn, "depends-on", "", "comma-separated prerequisite task ids")
	addCmd.Flags().IntVar(&addMaxRetries, "max-retries", types.DefaultMaxRetries, "requeue attempts before the task stays abandoned")
	addCmd.Flags().StringVar(&addContext, "context", "", "free-form context for the claiming agent")
	rootCmd.AddCommand(addCmd)
}
