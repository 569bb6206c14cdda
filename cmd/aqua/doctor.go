package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/config"
	"github.com/untoldecay/aqua/internal/storage/sqlite"
	"github.com/untoldecay/aqua/internal/types"
	"github.com/untoldecay/aqua/internal/ui"
)

// doctorCheck is one health probe result.
type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check project health",
	Run: func(cmd *cobra.Command, args []string) {
		var checks []doctorCheck

		path := config.DBPath()
		if _, err := os.Stat(path); err != nil {
			checks = append(checks, doctorCheck{
				Name: "database", OK: false,
				Detail: "missing; run 'aqua init'",
			})
			report(checks)
			return
		}
		checks = append(checks, doctorCheck{Name: "database", OK: true, Detail: path})

		requireStore()
		s, ok := store.(*sqlite.Store)
		if ok {
			if err := s.UnderlyingDB().PingContext(rootCtx); err != nil {
				checks = append(checks, doctorCheck{Name: "connection", OK: false, Detail: err.Error()})
			} else {
				checks = append(checks, doctorCheck{Name: "connection", OK: true})
			}
		}

		// Orphaned claims: claimed tasks whose agent is gone or dead.
		tasks, err := store.ListTasks(rootCtx, types.TaskFilter{Status: types.TaskClaimed})
		if err != nil {
			fatal(err)
		}
		orphans := 0
		for _, task := range tasks {
			agent, err := store.GetAgent(rootCtx, task.ClaimedBy)
			if err != nil || agent.Status == types.AgentDead {
				orphans++
			}
		}
		checks = append(checks, doctorCheck{
			Name: "orphaned claims", OK: orphans == 0,
			Detail: orphanDetail(orphans),
		})

		// Stale leader lease.
		leader, err := store.GetLeader(rootCtx)
		if err != nil {
			fatal(err)
		}
		switch {
		case leader == nil:
			checks = append(checks, doctorCheck{Name: "leader", OK: true, Detail: "no election yet"})
		case leader.IsExpired(time.Now().UTC()):
			checks = append(checks, doctorCheck{
				Name: "leader", OK: false,
				Detail: "lease expired; next agent heartbeat takes over",
			})
		default:
			checks = append(checks, doctorCheck{Name: "leader", OK: true})
		}

		report(checks)
	},
}

func orphanDetail(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d claimed tasks have no live owner; run 'aqua recover'", n)
}

func report(checks []doctorCheck) {
	if jsonOutput {
		outputJSON(checks)
		return
	}
	healthy := true
	for _, check := range checks {
		if check.OK {
			fmt.Println(ui.Success("%s %s", check.Name, ui.Muted(check.Detail)))
		} else {
			healthy = false
			fmt.Println(ui.Warn("%s: %s", check.Name, check.Detail))
		}
	}
	if !healthy {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
