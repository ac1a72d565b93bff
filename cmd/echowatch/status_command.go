package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"echowatch/internal/config"
	"echowatch/internal/ledger"
	"echowatch/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backlog depths and ledger totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				stage := staging.NewManager(cfg.Paths.StagingDir, nil)
				if err := stage.EnsureDirectories(); err != nil {
					return err
				}
				depths, err := stage.Depths(cmd.Context())
				if err != nil {
					return fmt.Errorf("read staging depths: %w", err)
				}
				counts, err := store.StatusCounts(cmd.Context())
				if err != nil {
					return err
				}
				last, haveLast, err := store.LastBatchTime(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("EchoWatch Status", colorize) {
					fmt.Fprintln(out, line)
				}
				pid, running := runningPID(cfg)
				if running {
					fmt.Fprintf(out, "Daemon:          running (pid %d)\n", pid)
				} else {
					fmt.Fprintln(out, "Daemon:          not running")
				}
				lastBatch := "never"
				if haveLast {
					lastBatch = formatTime(last)
				}
				fmt.Fprintf(out, "Last batch:      %s\n", lastBatch)
				fmt.Fprintln(out)

				rows := [][]string{
					{"Inbound", strconv.Itoa(depths.Staged)},
					{"In progress", strconv.Itoa(depths.InProgress)},
					{"Awaiting analysis", strconv.Itoa(depths.AwaitingAnalysis)},
				}
				for _, status := range []ledger.Status{ledger.StatusDownloaded, ledger.StatusConverted, ledger.StatusAnalyzed, ledger.StatusFailed} {
					rows = append(rows, []string{"Calls " + string(status), strconv.Itoa(counts[status])})
				}
				fmt.Fprintln(out, renderTable(numeric(columns("Stage", "Count"), "Count"), rows))
				return nil
			})
		},
	}
}

// runningPID reads the pid file written by "echowatch run". A stale file whose
// process no longer exists reports not running.
func runningPID(cfg *config.Config) (int, bool) {
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "echowatch.pid"))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if _, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid))); err != nil {
		return 0, false
	}
	return pid, true
}
