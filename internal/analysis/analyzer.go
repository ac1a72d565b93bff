package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"echowatch/internal/ledger"
	"echowatch/internal/logging"
	"echowatch/internal/notifications"
	"echowatch/internal/services"
	"echowatch/internal/services/llm"
	"echowatch/internal/staging"
)

// Completer issues a JSON-mode completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Ledger is the subset of the ledger the analyzer reads and writes.
type Ledger interface {
	PendingTranscripts(ctx context.Context, limit int) ([]ledger.Call, error)
	CountByStatus(ctx context.Context, status ledger.Status) (int, error)
	LastBatchTime(ctx context.Context) (time.Time, bool, error)
	RecordBatch(ctx context.Context, batch ledger.Batch, callIDs []int64) error
}

// Settings is the batching policy.
type Settings struct {
	BatchInterval     time.Duration
	MaxBatchSize      int
	SeverityThreshold float64
}

// Incident is one notable event the model identified.
type Incident struct {
	Type     string  `json:"type"`
	Location string  `json:"location"`
	Severity float64 `json:"severity"`
	Details  string  `json:"details"`
}

// Outcome describes one completed batch.
type Outcome struct {
	BatchID         string
	CallCount       int
	OverallSeverity float64
	Summary         string
	Incidents       []Incident
}

// Stats summarizes the analyzer backlog for status reports.
type Stats struct {
	SecondsUntilNextBatch float64
	Pending               int
}

// Analyzer batches converted transcripts and scores them.
type Analyzer struct {
	settings  Settings
	completer Completer
	ledger    Ledger
	staging   *staging.Manager
	notifier  notifications.Service
	logger    *slog.Logger

	now       func() time.Time
	newID     func() string
	startedAt time.Time
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator overrides batch ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(a *Analyzer) {
		if newID != nil {
			a.newID = newID
		}
	}
}

// NewAnalyzer wires an analyzer. stage may be nil when transcripts are not
// mirrored on disk; notifier may be nil to disable alerts.
func NewAnalyzer(settings Settings, completer Completer, store Ledger, stage *staging.Manager, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Analyzer {
	if settings.MaxBatchSize <= 0 {
		settings.MaxBatchSize = 1
	}
	a := &Analyzer{
		settings:  settings,
		completer: completer,
		ledger:    store,
		staging:   stage,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "analysis"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.startedAt = a.now()
	return a
}

// SeverityThreshold returns the inclusive alert threshold.
func (a *Analyzer) SeverityThreshold() float64 {
	return a.settings.SeverityThreshold
}

// Stats reports pending transcripts and time until the next batch is due.
func (a *Analyzer) Stats(ctx context.Context) (Stats, error) {
	pending, err := a.ledger.CountByStatus(ctx, ledger.StatusConverted)
	if err != nil {
		return Stats{}, err
	}
	due, err := a.nextDue(ctx)
	if err != nil {
		return Stats{}, err
	}
	wait := due.Sub(a.now())
	if wait < 0 || pending >= a.settings.MaxBatchSize {
		wait = 0
	}
	return Stats{SecondsUntilNextBatch: wait.Seconds(), Pending: pending}, nil
}

// AttemptBatchIfReady runs one batch when the policy allows. It returns a nil
// outcome and nil error when no batch was due.
func (a *Analyzer) AttemptBatchIfReady(ctx context.Context) (*Outcome, error) {
	pending, err := a.ledger.CountByStatus(ctx, ledger.StatusConverted)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "analysis", "count pending", "", err)
	}
	if pending == 0 {
		return nil, nil
	}
	if pending < a.settings.MaxBatchSize {
		due, err := a.nextDue(ctx)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "analysis", "last batch", "", err)
		}
		if a.now().Before(due) {
			return nil, nil
		}
	}

	calls, err := a.ledger.PendingTranscripts(ctx, a.settings.MaxBatchSize)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "analysis", "load transcripts", "", err)
	}
	if len(calls) == 0 {
		return nil, nil
	}
	batchID := a.newID()
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, a.logger)
	logger.Info("analyzing batch",
		logging.Int("calls", len(calls)),
		logging.Int("pending", pending),
		logging.EventType("batch_started"),
	)

	outcome, err := a.analyze(ctx, batchID, calls)
	if err != nil {
		return nil, err
	}
	alerted := outcome.OverallSeverity >= a.settings.SeverityThreshold
	incidentsJSON, err := json.Marshal(outcome.Incidents)
	if err != nil {
		return nil, fmt.Errorf("encode incidents: %w", err)
	}
	ids := make([]int64, len(calls))
	for i, call := range calls {
		ids[i] = call.ID
	}
	if err := a.ledger.RecordBatch(ctx, ledger.Batch{
		ID:              batchID,
		CreatedAt:       a.now(),
		OverallSeverity: outcome.OverallSeverity,
		Summary:         outcome.Summary,
		IncidentsJSON:   string(incidentsJSON),
		Alerted:         alerted,
	}, ids); err != nil {
		return nil, services.Wrap(services.ErrTransient, "analysis", "record batch", batchID, err)
	}
	a.archiveTranscripts(logger, calls)

	logger.Info("batch analyzed",
		logging.Int("calls", outcome.CallCount),
		logging.Float64("severity", outcome.OverallSeverity),
		logging.Int("incidents", len(outcome.Incidents)),
		logging.Bool("alert", alerted),
		logging.EventType("batch_analyzed"),
	)
	if alerted {
		a.sendAlert(ctx, logger, outcome)
	}
	return outcome, nil
}

func (a *Analyzer) nextDue(ctx context.Context) (time.Time, error) {
	last, ok, err := a.ledger.LastBatchTime(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || last.Before(a.startedAt) {
		last = a.startedAt
	}
	return last.Add(a.settings.BatchInterval), nil
}

type analysisPayload struct {
	OverallSeverity float64    `json:"overall_severity"`
	Summary         string     `json:"summary"`
	Incidents       []Incident `json:"incidents"`
}

func (a *Analyzer) analyze(ctx context.Context, batchID string, calls []ledger.Call) (*Outcome, error) {
	if a.completer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "llm", "no completion client configured", nil)
	}
	content, err := a.completer.CompleteJSON(ctx, systemPrompt, buildUserPrompt(calls))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "analysis", "llm", batchID, err)
	}
	var payload analysisPayload
	if err := llm.DecodeLLMJSON(content, &payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "analysis", "decode response", batchID, err)
	}
	incidents := make([]Incident, 0, len(payload.Incidents))
	for _, incident := range payload.Incidents {
		incident.Type = strings.TrimSpace(incident.Type)
		incident.Location = strings.TrimSpace(incident.Location)
		incident.Details = strings.TrimSpace(incident.Details)
		incident.Severity = clampSeverity(incident.Severity)
		if incident.Type == "" && incident.Details == "" {
			continue
		}
		incidents = append(incidents, incident)
	}
	return &Outcome{
		BatchID:         batchID,
		CallCount:       len(calls),
		OverallSeverity: clampSeverity(payload.OverallSeverity),
		Summary:         strings.TrimSpace(payload.Summary),
		Incidents:       incidents,
	}, nil
}

func (a *Analyzer) archiveTranscripts(logger *slog.Logger, calls []ledger.Call) {
	if a.staging == nil {
		return
	}
	for _, call := range calls {
		stem := strings.TrimSuffix(call.AudioFile, filepath.Ext(call.AudioFile))
		path := filepath.Join(a.staging.Dir(staging.Transcribing), stem+".txt")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := a.staging.Move(path, staging.Processed); err != nil {
			logger.Warn("failed to archive transcript",
				logging.String("file", filepath.Base(path)),
				logging.Error(err),
				logging.EventType("transcript_archive_failed"),
			)
		}
	}
}

func (a *Analyzer) sendAlert(ctx context.Context, logger *slog.Logger, outcome *Outcome) {
	if a.notifier == nil {
		return
	}
	alert := notifications.Alert{
		BatchID:   outcome.BatchID,
		Severity:  outcome.OverallSeverity,
		CallCount: outcome.CallCount,
		Summary:   outcome.Summary,
	}
	for _, incident := range outcome.Incidents {
		alert.Incidents = append(alert.Incidents, notifications.Incident{
			Type:     incident.Type,
			Location: incident.Location,
			Details:  incident.Details,
			Severity: incident.Severity,
		})
	}
	if err := a.notifier.NotifyAlert(ctx, alert); err != nil {
		logging.WarnWithContext(logger, "alert notification failed", "alert_notify_failed",
			logging.Error(err),
			logging.ErrorHint("check notifications.ntfy_topic"),
			logging.Impact("alert recorded in ledger but not pushed"),
		)
	}
}

func clampSeverity(value float64) float64 {
	switch {
	case math.IsNaN(value), value < 0:
		return 0
	case value > 10:
		return 10
	default:
		return value
	}
}
