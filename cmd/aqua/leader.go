package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var leaderCmd = &cobra.Command{
	Use:   "leader",
	Short: "Show the current leader and term",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		leader, err := store.GetLeader(rootCtx)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(map[string]any{"leader": leader})
			return
		}
		if leader == nil {
			fmt.Println(ui.Muted("no leader elected yet"))
			return
		}
		state := fmt.Sprintf("lease %ds remaining", int(time.Until(leader.LeaseExpiresAt).Seconds()))
		if leader.IsExpired(time.Now().UTC()) {
			state = ui.Warn("lease expired %s", util.TimeAgo(leader.LeaseExpiresAt))
		}
		fmt.Printf("%s  term %d  %s\n", ui.Accent(leader.AgentID), leader.Term, state)
	},
}

func init() {
	rootCmd.AddCommand(leaderCmd)
}
