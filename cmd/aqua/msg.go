package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/storage"
	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var (
	msgTo   string
	msgType string

	inboxAll   bool
	inboxLimit int
	inboxKeep  bool
)

var msgCmd = &cobra.Command{
	Use:   "msg <content...>",
	Short: "Send a message to an agent or everyone",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		to := msgTo
		switch to {
		case "", "@all":
			to = ""
		case "@leader":
			leader, err := store.GetLeader(rootCtx)
			if err != nil {
				fatal(err)
			}
			if leader == nil {
				fatal(fmt.Errorf("no leader elected yet"))
			}
			to = leader.AgentID
		default:
			// Accept a name as well as an id.
			if _, err := store.GetAgent(rootCtx, to); err != nil {
				agent, nameErr := store.GetAgentByName(rootCtx, to)
				if nameErr != nil {
					fatal(fmt.Errorf("recipient %q: %w", to, storage.ErrNotFound))
				}
				to = agent.ID
			}
		}

		msg, err := store.SendMessage(rootCtx, agentID, to, strings.Join(args, " "), msgType)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(msg)
			return
		}
		if msg.IsBroadcast() {
			fmt.Println(ui.Success("broadcast sent"))
		} else {
			fmt.Println(ui.Success("message sent to %s", ui.Accent(to)))
		}
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Read this agent's messages",
	Long:  "Shows unread messages (direct and broadcast) and marks them read. Use --all for history, --keep to leave them unread.",
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		agentID := currentAgentID()

		messages, err := store.Inbox(rootCtx, agentID, !inboxAll, inboxLimit)
		if err != nil {
			fatal(err)
		}

		if !inboxKeep && len(messages) > 0 {
			ids := make([]int64, 0, len(messages))
			for _, m := range messages {
				if m.ReadAt == nil {
					ids = append(ids, m.ID)
				}
			}
			if len(ids) > 0 {
				if _, err := store.MarkMessagesRead(rootCtx, agentID, ids); err != nil {
					fatal(err)
				}
			}
		}

		if jsonOutput {
			if messages == nil {
				messages = []*types.Message{}
			}
			outputJSON(messages)
			return
		}
		if len(messages) == 0 {
			fmt.Println(ui.Muted("inbox empty"))
			return
		}
		for _, m := range messages {
			scope := ""
			if m.IsBroadcast() {
				scope = ui.Muted(" [broadcast]")
			}
			fmt.Printf("%s %s%s: %s\n", ui.Muted(util.TimeAgo(m.CreatedAt)),
				ui.Accent(m.FromAgent), scope, m.Content)
		}
	},
}

func init() {
	msgCmd.Flags().StringVarP(&msgTo, "to", "t", "", "recipient agent id, name, @leader, or @all (empty = broadcast)")
	msgCmd.Flags().StringVar(&msgType, "type", "chat", "message type tag")
	inboxCmd.Flags().BoolVarP(&inboxAll, "all", "a", false, "include already-read messages")
	inboxCmd.Flags().IntVarP(&inboxLimit, "limit", "l", 0, "maximum messages to show (0 = all)")
	inboxCmd.Flags().BoolVarP(&inboxKeep, "keep", "k", false, "do not mark messages read")
	rootCmd.AddCommand(msgCmd)
	rootCmd.AddCommand(inboxCmd)
}
