package main

import (
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/aqua/internal/config"
	"github.com/untoldecay/aqua/internal/ui"
)

// wakeDebounce delays the sweep triggered by database activity so a
// burst of writes causes one sweep, not one per write.
const wakeDebounce = 2 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the recovery daemon",
	Long: `Runs recovery sweeps periodically and whenever database activity is
observed. A file lock in .aqua/ guarantees a single daemon per project;
output goes to .aqua/daemon.log with size-based rotation. The daemon is
optional: every CLI command leaves the database consistent without it.`,
	Run: func(cmd *cobra.Command, args []string) {
		requireStore()
		root, err := config.FindProjectRoot()
		if err != nil {
			fatal(err)
		}
		aquaDir := filepath.Join(root, config.AquaDir)

		fl := flock.New(filepath.Join(aquaDir, "daemon.lock"))
		locked, err := fl.TryLock()
		if err != nil {
			fatal(fmt.Errorf("failed to take daemon lock: %w", err))
		}
		if !locked {
			fatal(fmt.Errorf("another daemon is already running for this project"))
		}
		defer func() { _ = fl.Unlock() }()

		logger := log.New(&lumberjack.Logger{
			Filename:   filepath.Join(aquaDir, "daemon.log"),
			MaxSize:    config.GetInt("daemon.log-max-size-mb"),
			MaxBackups: config.GetInt("daemon.log-max-backups"),
		}, "", log.LstdFlags)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			fatal(fmt.Errorf("failed to create watcher: %w", err))
		}
		defer func() { _ = watcher.Close() }()
		// Watching the directory catches the db, its WAL, and the
		// sessions dir without racing file creation.
		if err := watcher.Add(aquaDir); err != nil {
			fatal(fmt.Errorf("failed to watch %s: %w", aquaDir, err))
		}

		interval := config.GetDuration("daemon.recovery-interval")
		if interval <= 0 {
			interval = time.Minute
		}
		logger.Printf("daemon started, recovery interval %s", interval)
		if !jsonOutput {
			fmt.Println(ui.Success("daemon running, interval %s, log %s",
				interval, filepath.Join(aquaDir, "daemon.log")))
		}

		sweep := func(reason string) {
			report, err := coord.RunRecovery(rootCtx)
			if err != nil {
				logger.Printf("recovery failed (%s): %v", reason, err)
				return
			}
			if len(report.DeadAgents) > 0 || report.StaleTasks > 0 || report.RequeuedTasks > 0 {
				logger.Printf("recovery (%s): dead=[%s] stale=%d requeued=%d",
					reason, strings.Join(report.DeadAgents, ","),
					report.StaleTasks, report.RequeuedTasks)
			}
		}
		sweep("startup")

		// Jitter desynchronizes daemons that started together.
		ticker := time.NewTicker(interval + time.Duration(rand.Int63n(int64(interval/10+1))))
		defer ticker.Stop()
		var wake *time.Timer
		var wakeCh <-chan time.Time

		for {
			select {
			case <-rootCtx.Done():
				logger.Printf("daemon stopping: %v", rootCtx.Err())
				return
			case <-ticker.C:
				sweep("interval")
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if wake == nil {
					wake = time.NewTimer(wakeDebounce)
					wakeCh = wake.C
				}
			case <-wakeCh:
				wake = nil
				wakeCh = nil
				sweep("activity")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("watcher error: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
