package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"echowatch/internal/logging"
	"echowatch/internal/staging"
)

const unknownFigure = "unknown"

// Backlog holds live figures pulled from collaborators at report time. The
// Known flags are false when the collaborator could not answer.
type Backlog struct {
	Depths         staging.Depths
	DepthsKnown    bool
	NextBatchIn    time.Duration
	NextBatchKnown bool
	WorkersDown    []string
}

// Render formats a status report. It never fails; missing figures print as
// "unknown".
func Render(snap Snapshot, backlog Backlog) []string {
	lines := []string{
		fmt.Sprintf("Uptime: %.1f hours", snap.Uptime.Hours()),
		fmt.Sprintf("Calls ingested: %d", snap.ItemsIngested),
		fmt.Sprintf("Calls converted: %d", snap.ItemsConverted),
		fmt.Sprintf("Batches analyzed: %d", snap.BatchesAnalyzed),
		fmt.Sprintf("Alerts raised: %d", snap.AlertsRaised),
	}
	depth := func(n int) string {
		if !backlog.DepthsKnown {
			return unknownFigure
		}
		return fmt.Sprintf("%d", n)
	}
	lines = append(lines,
		"Inbound queue: "+depth(backlog.Depths.Staged),
		"Processing queue: "+depth(backlog.Depths.InProgress),
		"Transcribing queue: "+depth(backlog.Depths.AwaitingAnalysis),
	)
	if backlog.NextBatchKnown {
		lines = append(lines, fmt.Sprintf("Next batch in: %.0fs", backlog.NextBatchIn.Seconds()))
	} else {
		lines = append(lines, "Next batch in: "+unknownFigure)
	}
	if len(backlog.WorkersDown) > 0 {
		lines = append(lines, "Workers down: "+strings.Join(backlog.WorkersDown, ", "))
	}
	return lines
}

// Reporter renders Stats plus collaborator backlogs to the log.
type Reporter struct {
	Stats       *Stats
	Logger      *slog.Logger
	Depths      func(ctx context.Context) (staging.Depths, error)
	NextBatch   func(ctx context.Context) (time.Duration, error)
	WorkersDown func() []string
}

// Collect queries each collaborator, substituting unknown figures for any
// that fail or panic.
func (r *Reporter) Collect(ctx context.Context) Backlog {
	logger := r.logger()
	var backlog Backlog
	if r.Depths != nil {
		err := guard(func() error {
			depths, err := r.Depths(ctx)
			if err == nil {
				backlog.Depths = depths
			}
			return err
		})
		if err != nil {
			logger.Warn("backlog depths unavailable for report",
				logging.Error(err),
				logging.EventType("report_backlog_unavailable"),
				logging.Impact("queue depths shown as unknown"),
			)
		} else {
			backlog.DepthsKnown = true
		}
	}
	if r.NextBatch != nil {
		err := guard(func() error {
			next, err := r.NextBatch(ctx)
			if err == nil {
				backlog.NextBatchIn = next
			}
			return err
		})
		if err != nil {
			logger.Warn("batch schedule unavailable for report",
				logging.Error(err),
				logging.EventType("report_schedule_unavailable"),
				logging.Impact("next batch time shown as unknown"),
			)
		} else {
			backlog.NextBatchKnown = true
		}
	}
	if r.WorkersDown != nil {
		backlog.WorkersDown = r.WorkersDown()
	}
	return backlog
}

// Report logs a titled status report and returns the rendered lines.
func (r *Reporter) Report(ctx context.Context, title string) []string {
	var snap Snapshot
	if r.Stats != nil {
		snap = r.Stats.Snapshot()
	}
	lines := Render(snap, r.Collect(ctx))
	logger := r.logger()
	logger.Info(title, logging.EventType("stats_report"))
	for _, line := range lines {
		logger.Info(line)
	}
	return lines
}

func (r *Reporter) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
