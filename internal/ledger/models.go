package ledger

import (
	"errors"
	"time"
)

// Status is a call's position in the pipeline.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusConverted  Status = "converted"
	StatusAnalyzed   Status = "analyzed"
	StatusFailed     Status = "failed"
)

// ErrDuplicate is returned when a call with the same source ID already exists.
var ErrDuplicate = errors.New("call already recorded")

// Call is one recorded radio transmission.
type Call struct {
	ID              int64
	SourceID        string
	AudioFile       string
	Talkgroup       string
	ReceivedAt      time.Time
	DurationSeconds float64
	Status          Status
	Transcript      string
	BatchID         string
	Attempts        int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Batch is one completed analysis over a group of transcripts.
type Batch struct {
	ID              string
	CreatedAt       time.Time
	CallCount       int
	OverallSeverity float64
	Summary         string
	IncidentsJSON   string
	Alerted         bool
}
