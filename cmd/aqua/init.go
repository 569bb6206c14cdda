package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/untoldecay/aqua/internal/config"
	"github.com/untoldecay/aqua/internal/storage/sqlite"
	"github.com/untoldecay/aqua/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize aqua in the current directory",
	Long:  "Creates the .aqua directory and database. Idempotent: re-running against an existing project is a no-op.",
	Run: func(cmd *cobra.Command, args []string) {
		path := config.GetString("db")
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				fatal(err)
			}
			path = filepath.Join(cwd, config.AquaDir, config.DBFile)
		}
		existed := false
		if _, err := os.Stat(path); err == nil {
			existed = true
		}

		s, err := sqlite.New(rootCtx, path,
			sqlite.WithBusyTimeout(config.GetDuration("busy-timeout")))
		if err != nil {
			fatal(err)
		}
		store = s

		if jsonOutput {
			outputJSON(map[string]any{
				"initialized": true,
				"db":          path,
				"existed":     existed,
			})
			return
		}
		if existed {
			fmt.Println(ui.Warn("already initialized at %s", path))
			return
		}
		fmt.Println(ui.Success("initialized aqua at %s", path))
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
