package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var lockCmd = &cobra.Command{
	Use:   "lock <path>",
	Short: "Take an advisory lock on a file",
	Long:  "Locks are advisory: aqua records who claimed a path, nothing stops a non-cooperating process from writing it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()
		path := args[0]

		ok, err := store.LockFile(rootCtx, path, agentID)
		if err != nil {
			fatal(err)
		}
		if ok {
			_ = store.LogEvent(rootCtx, types.EventFileLocked, agentID, "",
				map[string]string{"path": path})
		}

		if jsonOutput {
			outputJSON(map[string]any{"path": path, "locked": ok})
			return
		}
		if !ok {
			holder, _ := store.GetFileLock(rootCtx, path)
			who := "another agent"
			if holder != nil {
				who = holder.AgentID
			}
			fmt.Println(ui.Warn("%s is locked by %s", path, ui.Accent(who)))
			return
		}
		fmt.Println(ui.Success("locked %s", path))
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <path>",
	Short: "Release an advisory file lock",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()
		path := args[0]

		ok, err := store.UnlockFile(rootCtx, path, agentID)
		if err != nil {
			fatal(err)
		}
		if ok {
			_ = store.LogEvent(rootCtx, types.EventFileUnlocked, agentID, "",
				map[string]string{"path": path})
		}

		if jsonOutput {
			outputJSON(map[string]any{"path": path, "unlocked": ok})
			return
		}
		if !ok {
			fmt.Println(ui.Warn("%s is not locked by this agent", path))
			return
		}
		fmt.Println(ui.Success("unlocked %s", path))
	},
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List advisory file locks",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		locks, err := store.ListLocks(rootCtx)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			if locks == nil {
				locks = []*types.FileLock{}
			}
			outputJSON(locks)
			return
		}
		if len(locks) == 0 {
			fmt.Println(ui.Muted("no file locks"))
			return
		}
		for _, lock := range locks {
			fmt.Printf("%s  %s %s\n", lock.FilePath, ui.Accent(lock.AgentID),
				ui.Muted(util.TimeAgo(lock.LockedAt)))
		}
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(locksCmd)
}
