package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"echowatch/internal/preflight"
)

var errPreflightFailed = errors.New("one or more checks failed")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check binaries, services, and disk space",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			if jsonOut {
				type jsonResult struct {
					Name   string `json:"name"`
					Passed bool   `json:"passed"`
					Detail string `json:"detail"`
				}
				items := make([]jsonResult, 0, len(results))
				for _, r := range results {
					items = append(items, jsonResult(r))
				}
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"checks": items}); err != nil {
					return err
				}
			} else {
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					rows = append(rows, []string{r.Name, renderStatusCell(kind, colorize), r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(columns("Check", "Status", "Detail"), rows))
			}

			if preflight.Failed(results) {
				return errPreflightFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
