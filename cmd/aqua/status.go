package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agents, queue, and leader at a glance",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		agents, err := store.ListAgents(rootCtx, "")
		if err != nil {
			fatal(err)
		}
		counts, err := store.TaskCounts(rootCtx)
		if err != nil {
			fatal(err)
		}
		leader, err := store.GetLeader(rootCtx)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			if agents == nil {
				agents = []*types.Agent{}
			}
			outputJSON(map[string]any{
				"agents": agents,
				"tasks":  counts,
				"leader": leader,
			})
			return
		}

		fmt.Println(ui.Header("Agents"))
		if len(agents) == 0 {
			fmt.Println(ui.Muted("  none joined"))
		}
		leaderID := ""
		if leader != nil && !leader.IsExpired(time.Now().UTC()) {
			leaderID = leader.AgentID
		}
		for _, agent := range agents {
			mark := " "
			if agent.ID == leaderID {
				mark = ui.Bold("*")
			}
			line := fmt.Sprintf("%s %s %s [%s] heartbeat %s",
				mark, ui.Accent(agent.Name), ui.Muted(agent.ID),
				ui.AgentStatus(agent.Status), util.TimeAgo(agent.LastHeartbeatAt))
			if agent.CurrentTaskID != "" {
				line += ui.Muted("  working on " + agent.CurrentTaskID)
			}
			fmt.Println(line)
		}

		fmt.Println()
		fmt.Println(ui.Header("Tasks"))
		total := 0
		for _, status := range []types.TaskStatus{
			types.TaskPending, types.TaskClaimed, types.TaskDone,
			types.TaskFailed, types.TaskAbandoned,
		} {
			if n := counts[status]; n > 0 {
				fmt.Printf("  %-10s %d\n", ui.TaskStatus(status), n)
				total += n
			}
		}
		if total == 0 {
			fmt.Println(ui.Muted("  queue empty"))
		}

		if leader != nil {
			fmt.Println()
			fmt.Printf("Leader: %s term %d\n", ui.Accent(leader.AgentID), leader.Term)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
