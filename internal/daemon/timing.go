package daemon

import (
	"time"

	"echowatch/internal/config"
	"echowatch/internal/workflow"
)

// Timing holds every interval the supervisor and its workers use.
type Timing struct {
	Ingest         workflow.RetryPolicy
	Convert        workflow.RetryPolicy
	Analyze        workflow.RetryPolicy
	ReportInterval time.Duration
	PollWindow     time.Duration
	JoinTimeout    time.Duration
	LivenessPoll   time.Duration
}

// DefaultTiming returns the stock worker cadence.
func DefaultTiming() Timing {
	return Timing{
		Ingest:         workflow.RetryPolicy{SuccessWait: 5 * time.Second, FailureWait: 10 * time.Second},
		Convert:        workflow.RetryPolicy{SuccessWait: 10 * time.Second, FailureWait: 15 * time.Second},
		Analyze:        workflow.RetryPolicy{SuccessWait: 15 * time.Second, FailureWait: 20 * time.Second},
		ReportInterval: 300 * time.Second,
		PollWindow:     30 * time.Second,
		JoinTimeout:    10 * time.Second,
		LivenessPoll:   time.Second,
	}
}

// TimingFromConfig reads the [workflow] waits and the source poll window.
// Non-positive values keep their defaults.
func TimingFromConfig(cfg *config.Config) Timing {
	t := DefaultTiming()
	if cfg == nil {
		return t
	}
	w := cfg.Workflow
	set := func(dst *time.Duration, seconds int) {
		if seconds > 0 {
			*dst = time.Duration(seconds) * time.Second
		}
	}
	set(&t.Ingest.SuccessWait, w.IngestSuccessWait)
	set(&t.Ingest.FailureWait, w.IngestFailureWait)
	set(&t.Convert.SuccessWait, w.ConvertSuccessWait)
	set(&t.Convert.FailureWait, w.ConvertFailureWait)
	set(&t.Analyze.SuccessWait, w.AnalyzeSuccessWait)
	set(&t.Analyze.FailureWait, w.AnalyzeFailureWait)
	set(&t.ReportInterval, w.ReportInterval)
	set(&t.JoinTimeout, w.JoinTimeout)
	set(&t.LivenessPoll, w.LivenessPoll)
	set(&t.PollWindow, cfg.Source.PollWindowSeconds)
	return t
}

// withDefaults fills zero fields from DefaultTiming.
func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	fill := func(dst *time.Duration, fallback time.Duration) {
		if *dst <= 0 {
			*dst = fallback
		}
	}
	fill(&t.Ingest.SuccessWait, def.Ingest.SuccessWait)
	fill(&t.Ingest.FailureWait, def.Ingest.FailureWait)
	fill(&t.Convert.SuccessWait, def.Convert.SuccessWait)
	fill(&t.Convert.FailureWait, def.Convert.FailureWait)
	fill(&t.Analyze.SuccessWait, def.Analyze.SuccessWait)
	fill(&t.Analyze.FailureWait, def.Analyze.FailureWait)
	fill(&t.ReportInterval, def.ReportInterval)
	fill(&t.PollWindow, def.PollWindow)
	fill(&t.JoinTimeout, def.JoinTimeout)
	fill(&t.LivenessPoll, def.LivenessPoll)
	return t
}
