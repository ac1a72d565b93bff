package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"echowatch/internal/fileutil"
	"echowatch/internal/logging"
	"echowatch/internal/services"
	"echowatch/internal/services/whisperx"
	"echowatch/internal/staging"
)

// DefaultMaxAttempts bounds how often a retryable failure is retried.
const DefaultMaxAttempts = 3

// Transcriber converts and transcribes a single recording.
type Transcriber interface {
	ConvertToWAV(ctx context.Context, source, dest string) error
	Transcribe(ctx context.Context, source, outputDir string) (whisperx.Transcript, error)
}

// Ledger records conversion outcomes.
type Ledger interface {
	MarkConverted(ctx context.Context, audioFile, transcript string) error
	RecordFailure(ctx context.Context, audioFile, message string, terminal bool) (int, error)
	MarkFailed(ctx context.Context, audioFile string) error
}

// Converter drains the inbound stage.
type Converter struct {
	staging     *staging.Manager
	transcriber Transcriber
	ledger      Ledger
	logger      *slog.Logger
	maxAttempts int
	retention   time.Duration
}

// NewConverter wires a converter. retention controls how long processed and
// failed files are kept; zero keeps them forever.
func NewConverter(stage *staging.Manager, transcriber Transcriber, ledger Ledger, retention time.Duration, logger *slog.Logger) *Converter {
	return &Converter{
		staging:     stage,
		transcriber: transcriber,
		ledger:      ledger,
		logger:      logging.NewComponentLogger(logger, "audio"),
		maxAttempts: DefaultMaxAttempts,
		retention:   retention,
	}
}

// Prepare requeues files stranded in inprogress and prunes stale outputs.
// It runs once before the convert worker starts.
func (c *Converter) Prepare(ctx context.Context) error {
	if err := c.staging.EnsureDirectories(); err != nil {
		return err
	}
	if _, err := c.staging.Recover(); err != nil {
		return fmt.Errorf("recover inprogress: %w", err)
	}
	c.staging.CleanStale(ctx, c.retention)
	return nil
}

// ConvertAllStaged processes every inbound file and returns how many were
// converted. Per-file failures are logged and handled in place; an error is
// returned only when the inbound stage cannot be listed.
func (c *Converter) ConvertAllStaged(ctx context.Context) (int, error) {
	files, err := c.staging.List(staging.Inbound)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "audio", "list inbound", "", err)
	}
	converted := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if err := c.convertOne(ctx, path); err != nil {
			c.handleFailure(ctx, path, err)
			continue
		}
		converted++
	}
	if converted > 0 {
		c.logger.Info("conversion pass complete",
			logging.Int("converted", converted),
			logging.Int("seen", len(files)),
			logging.EventType("convert_pass_complete"),
		)
	}
	if pruned := c.staging.CleanStale(ctx, c.retention); len(pruned.Errors) > 0 {
		logging.WarnWithContext(c.logger, "stale staging cleanup incomplete", "staging_cleanup_failed",
			logging.Int("errors", len(pruned.Errors)),
			logging.Impact("disk space not reclaimed"),
		)
	}
	return converted, nil
}

// BacklogDepths reports the staging backlog.
func (c *Converter) BacklogDepths(ctx context.Context) (staging.Depths, error) {
	return c.staging.Depths(ctx)
}

func (c *Converter) convertOne(ctx context.Context, inbound string) error {
	name := filepath.Base(inbound)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	working, err := c.staging.Move(inbound, staging.InProgress)
	if err != nil {
		return services.Wrap(services.ErrTransient, "audio", "claim", name, err)
	}
	workDir, err := os.MkdirTemp(c.staging.Dir(staging.InProgress), ".work-")
	if err != nil {
		return services.Wrap(services.ErrTransient, "audio", "workdir", name, err)
	}
	defer os.RemoveAll(workDir)

	started := time.Now()
	wav := filepath.Join(workDir, stem+".wav")
	if err := c.transcriber.ConvertToWAV(ctx, working, wav); err != nil {
		return services.Wrap(services.ErrExternalTool, "audio", "ffmpeg", name, err)
	}
	transcript, err := c.transcriber.Transcribe(ctx, wav, workDir)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "audio", "whisperx", name, err)
	}

	textPath := filepath.Join(c.staging.Dir(staging.Transcribing), stem+".txt")
	if _, err := fileutil.WriteAtomic(textPath, strings.NewReader(transcript.Text+"\n")); err != nil {
		return services.Wrap(services.ErrTransient, "audio", "write transcript", name, err)
	}
	if err := c.ledger.MarkConverted(ctx, name, transcript.Text); err != nil {
		_ = os.Remove(textPath)
		return services.Wrap(services.ErrTransient, "audio", "ledger", name, err)
	}
	if _, err := c.staging.Move(working, staging.Processed); err != nil {
		logging.WarnWithContext(c.logger, "failed to archive converted audio", "audio_archive_failed",
			logging.String("file", name),
			logging.Error(err),
			logging.Impact("audio left in inprogress until the next start"),
		)
	}

	c.logger.Info("call transcribed",
		logging.String("file", name),
		logging.Int("words", len(strings.Fields(transcript.Text))),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		logging.EventType("call_transcribed"),
	)
	return nil
}

// handleFailure records err against the file and routes it back to inbound
// or into failed.
func (c *Converter) handleFailure(ctx context.Context, original string, cause error) {
	name := filepath.Base(original)
	current := original
	if _, err := os.Stat(current); err != nil {
		current = filepath.Join(c.staging.Dir(staging.InProgress), name)
	}

	if ctx.Err() != nil {
		if _, err := os.Stat(current); err == nil && current != original {
			_, _ = c.staging.Move(current, staging.Inbound)
		}
		c.logger.Info("conversion interrupted; call requeued",
			logging.String("file", name),
			logging.EventType("call_convert_interrupted"),
		)
		return
	}

	retryable := services.Retryable(cause)
	attempts, err := c.ledger.RecordFailure(ctx, name, cause.Error(), !retryable)
	if err != nil {
		c.logger.Warn("failed to record conversion failure",
			logging.String("file", name),
			logging.Error(err),
			logging.EventType("ledger_update_failed"),
		)
	}
	if retryable && attempts >= c.maxAttempts {
		retryable = false
		if err := c.ledger.MarkFailed(ctx, name); err != nil {
			c.logger.Warn("failed to mark call failed",
				logging.String("file", name),
				logging.Error(err),
				logging.EventType("ledger_update_failed"),
			)
		}
	}

	target := staging.Failed
	if retryable {
		target = staging.Inbound
	}
	if _, err := os.Stat(current); err == nil {
		if _, err := c.staging.Move(current, target); err != nil {
			c.logger.Warn("failed to route failed call",
				logging.String("file", name),
				logging.String("target", string(target)),
				logging.Error(err),
				logging.EventType("staging_move_failed"),
			)
		}
	}

	logging.WarnWithContext(c.logger, "call conversion failed", "call_convert_failed",
		logging.String("file", name),
		logging.Int("attempts", attempts),
		logging.Bool("will_retry", retryable),
		logging.Error(cause),
		logging.ErrorHint("check ffmpeg and whisperx output in the error"),
		logging.Impact(fmt.Sprintf("call moved to %s", target)),
	)
}
