package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/session"
	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var (
	joinName         string
	joinType         string
	joinRole         string
	joinCapabilities string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Register this session as an agent",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		agentType, err := types.ParseAgentType(joinType)
		if err != nil {
			fatal(err)
		}

		res, err := coord.Join(rootCtx, joinName, agentType, joinRole,
			util.ParseTags(joinCapabilities), nil)
		if err != nil {
			fatal(err)
		}
		if err := session.Store(res.Agent.ID); err != nil {
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
		fmt.Println(ui.Success("joined as %s%s", ui.Accent(res.Agent.Name), leaderMark))
		fmt.Printf("  Agent ID: %s\n", res.Agent.ID)
		fmt.Println(ui.Muted(fmt.Sprintf("  Set %s=%s to use this agent in other terminals",
			session.EnvAgentID, res.Agent.ID)))
	},
}

func init() {
	joinCmd.Flags().StringVarP(&joinName, "name", "n", "", "agent name (generated when empty)")
	joinCmd.Flags().StringVarP(&joinType, "type", "t", string(types.TypeGeneric), "agent type: claude, codex, gemini, generic")
	joinCmd.Flags().StringVarP(&joinRole, "role", "r", "", "advisory role for task selection")
	joinCmd.Flags().StringVarP(&joinCapabilities, "capabilities", "c", "", "comma-separated capabilities")
	rootCmd.AddCommand(joinCmd)
}
