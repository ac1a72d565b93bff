package daemon

import (
	"context"
	"time"

	"echowatch/internal/analysis"
	"echowatch/internal/ingest"
	"echowatch/internal/staging"
)

// Environment prepares the on-disk layout before workers start.
type Environment interface {
	EnsureDirectories() error
}

// SourceMonitor produces new calls. Initialize failing takes the ingest
// worker down for the rest of the run.
type SourceMonitor interface {
	Initialize(ctx context.Context) error
	Poll(ctx context.Context, window time.Duration) ([]ingest.ItemRef, error)
	AbortActive()
	Shutdown()
}

// Converter turns staged calls into transcripts.
type Converter interface {
	ConvertAllStaged(ctx context.Context) (int, error)
	BacklogDepths(ctx context.Context) (staging.Depths, error)
}

// Preparer is implemented by converters that need one-time setup before the
// first pass.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Analyzer batches transcripts and scores them.
type Analyzer interface {
	AttemptBatchIfReady(ctx context.Context) (*analysis.Outcome, error)
	SeverityThreshold() float64
	Stats(ctx context.Context) (analysis.Stats, error)
}
