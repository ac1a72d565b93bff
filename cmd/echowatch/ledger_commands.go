package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"echowatch/internal/config"
	"echowatch/internal/ledger"
)

func newCallsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recently recorded calls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLedger(func(_ *config.Config, store *ledger.Store) error {
				calls, err := store.ListCalls(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"calls": callViews(calls)})
				}
				out := cmd.OutOrStdout()
				if len(calls) == 0 {
					fmt.Fprintln(out, "No calls recorded")
					return nil
				}
				rows := make([][]string, 0, len(calls))
				for _, call := range calls {
					rows = append(rows, []string{
						strconv.FormatInt(call.ID, 10),
						call.SourceID,
						call.Talkgroup,
						formatTime(call.ReceivedAt),
						fmt.Sprintf("%.1fs", call.DurationSeconds),
						string(call.Status),
						summarizeTranscript(call),
					})
				}
				fmt.Fprintln(out, renderTable(
					numeric(columns("ID", "Source", "Talkgroup", "Received", "Duration", "Status", "Transcript"), "ID", "Duration"),
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of calls to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recent analysis batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				batches, err := store.ListBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"batches": batchViews(batches)})
				}
				out := cmd.OutOrStdout()
				if len(batches) == 0 {
					fmt.Fprintln(out, "No batches analyzed")
					return nil
				}
				colorize := shouldColorize(out)
				threshold := cfg.Analysis.SeverityThreshold
				rows := make([][]string, 0, len(batches))
				for _, batch := range batches {
					severity := paint(severityKind(batch.OverallSeverity, threshold), fmt.Sprintf("%.1f", batch.OverallSeverity), colorize)
					rows = append(rows, []string{
						shortID(batch.ID),
						formatTime(batch.CreatedAt),
						strconv.Itoa(batch.CallCount),
						severity,
						yesNo(batch.Alerted),
						truncate(batch.Summary, 60),
					})
				}
				fmt.Fprintln(out, renderTable(
					numeric(columns("Batch", "Created", "Calls", "Severity", "Alerted", "Summary"), "Calls", "Severity"),
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

type callView struct {
	ID         int64   `json:"id"`
	SourceID   string  `json:"source_id"`
	Talkgroup  string  `json:"talkgroup"`
	ReceivedAt string  `json:"received_at"`
	Duration   float64 `json:"duration_seconds"`
	Status     string  `json:"status"`
	Transcript string  `json:"transcript,omitempty"`
	BatchID    string  `json:"batch_id,omitempty"`
	Attempts   int     `json:"attempts"`
	LastError  string  `json:"last_error,omitempty"`
}

func callViews(calls []ledger.Call) []callView {
	views := make([]callView, 0, len(calls))
	for _, c := range calls {
		views = append(views, callView{
			ID:         c.ID,
			SourceID:   c.SourceID,
			Talkgroup:  c.Talkgroup,
			ReceivedAt: c.ReceivedAt.UTC().Format(time.RFC3339),
			Duration:   c.DurationSeconds,
			Status:     string(c.Status),
			Transcript: c.Transcript,
			BatchID:    c.BatchID,
			Attempts:   c.Attempts,
			LastError:  c.LastError,
		})
	}
	return views
}

type batchView struct {
	ID              string  `json:"id"`
	CreatedAt       string  `json:"created_at"`
	CallCount       int     `json:"call_count"`
	OverallSeverity float64 `json:"overall_severity"`
	Summary         string  `json:"summary"`
	Alerted         bool    `json:"alerted"`
}

func batchViews(batches []ledger.Batch) []batchView {
	views := make([]batchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, batchView{
			ID:              b.ID,
			CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
			CallCount:       b.CallCount,
			OverallSeverity: b.OverallSeverity,
			Summary:         b.Summary,
			Alerted:         b.Alerted,
		})
	}
	return views
}

func summarizeTranscript(call ledger.Call) string {
	switch {
	case call.Status == ledger.StatusFailed && call.LastError != "":
		return truncate("error: "+call.LastError, 50)
	case call.Transcript != "":
		return truncate(call.Transcript, 50)
	default:
		return "-"
	}
}
