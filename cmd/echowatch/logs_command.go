package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"echowatch/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var match string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the current run log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := filepath.Join(cfg.Paths.LogDir, "echowatch.log")
			return logs.Stream(cmd.Context(), path, logs.Options{
				Lines:  lines,
				Follow: follow,
				Match:  match,
			}, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&match, "match", "", "Only show lines containing this text (e.g. a worker name)")
	return cmd
}
