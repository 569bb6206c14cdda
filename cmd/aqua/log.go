package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
	"github.com/untoldecay/aqua/internal/util"
)

var (
	logLimit int
	logType  string
	logAgent string
	logTask  string
	logSince string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the coordination event log",
	Long: `Shows the append-only audit trail, newest first. --since accepts
RFC3339 timestamps or natural language ("10 minutes ago", "yesterday").`,
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()

		filter := types.EventFilter{
			Type:    logType,
			AgentID: logAgent,
			TaskID:  logTask,
			Limit:   logLimit,
		}
		if logSince != "" {
			since, err := parseSince(logSince)
			if err != nil {
				fatal(err)
			}
			filter.Since = since
		}

		events, err := store.ListEvents(rootCtx, filter)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			if events == nil {
				events = []*types.Event{}
			}
			outputJSON(events)
			return
		}
		if len(events) == 0 {
			fmt.Println(ui.Muted("no events"))
			return
		}
		for _, event := range events {
			line := fmt.Sprintf("%s  %s", ui.Muted(util.TimeAgo(event.Timestamp)),
				ui.Bold(event.EventType))
			if event.AgentID != "" {
				line += "  " + ui.Accent(event.AgentID)
			}
			if event.TaskID != "" {
				line += "  " + event.TaskID
			}
			for k, v := range event.Details {
				line += ui.Muted(fmt.Sprintf("  %s=%s", k, v))
			}
			fmt.Println(line)
		}
	},
}

// parseSince accepts RFC3339 or natural language via the when parser.
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	res, err := w.Parse(raw, time.Now())
	if err != nil || res == nil {
		return time.Time{}, fmt.Errorf("could not parse time %q", raw)
	}
	return res.Time.UTC(), nil
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "l", 20, "maximum events to show")
	logCmd.Flags().StringVarP(&logType, "type", "t", "", "filter by event type")
	logCmd.Flags().StringVarP(&logAgent, "agent", "a", "", "filter by agent id")
	logCmd.Flags().StringVar(&logTask, "task", "", "filter by task id")
	logCmd.Flags().StringVar(&logSince, "since", "", "only events after this time")
	rootCmd.AddCommand(logCmd)
}
