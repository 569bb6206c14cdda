package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/session"
	"github.com/untoldecay/aqua/internal/ui"
)

var leaveForce bool

var leaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Deregister this session's agent",
	Long: `Releases the agent's file locks, removes its registration, and clears
the session identity. Refuses to leave while a task is claimed unless
--force is given; the forced leave abandons the task.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		if err := coord.Leave(rootCtx, agentID, leaveForce); err != nil {
			fatal(err)
		}
		if err := session.Clear(); err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(map[string]any{"left": true, "agent_id": agentID})
			return
		}
		fmt.Println(ui.Success("left the coordination pool"))
	},
}

func init() {
	leaveCmd.Flags().BoolVarP(&leaveForce, "force", "f", false,
		"leave even while holding a claimed task (abandons it)")
	rootCmd.AddCommand(leaveCmd)
}
