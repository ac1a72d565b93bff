package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"echowatch/internal/analysis"
	"echowatch/internal/audio"
	"echowatch/internal/config"
	"echowatch/internal/daemon"
	"echowatch/internal/deps"
	"echowatch/internal/ingest"
	"echowatch/internal/ledger"
	"echowatch/internal/logging"
	"echowatch/internal/notifications"
	"echowatch/internal/preflight"
	"echowatch/internal/services/llm"
	"echowatch/internal/services/whisperx"
	"echowatch/internal/staging"
	"echowatch/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

const (
	logPrefix      = "echowatch-"
	currentLogName = "echowatch.log"
	pidFileName    = "echowatch.pid"
)

// Run starts the echowatch pipeline and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, logPrefix+runID+".log")

	var sessionID string
	var debugLogPath string
	if opts.Diagnostic {
		sessionID = uuid.NewString()
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, logPrefix+runID+".log")
	}

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		SessionID:   sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugLogger, debugErr := logging.New(logging.Options{
			Level:       "debug",
			Format:      "json",
			OutputPaths: []string{debugLogPath},
			Development: true,
			SessionID:   sessionID,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			if err := ensureCurrentLogPointer(filepath.Join(cfg.Paths.LogDir, "debug"), debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/%s link: %v\n", currentLogName, err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.EventType("diagnostic_mode_enabled"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", currentLogName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logPrefix + "*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: logPrefix + "*.log", Exclude: []string{debugLogPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	d, err := build(cfg, store, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(ctx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.ErrorHint("check directory permissions and that no other instance is running"),
		)
		return err
	}
	logger.Info("echowatch shutting down")
	return nil
}

// build wires the pipeline collaborators around an open ledger.
func build(cfg *config.Config, store *ledger.Store, notifier notifications.Service, logger *slog.Logger) (*daemon.Daemon, error) {
	stage := staging.NewManager(cfg.Paths.StagingDir, logger)

	monitor := ingest.NewMonitor(cfg.Source, stage.Dir(staging.Inbound), store, logger)

	transcriber := whisperx.NewService(whisperx.Config{
		Model:       cfg.Audio.WhisperXModel,
		CUDAEnabled: cfg.Audio.WhisperXCUDAEnabled,
		Language:    cfg.Audio.Language,
	}, cfg.Audio.FFmpegBinary)
	retention := time.Duration(cfg.Audio.ProcessedRetentionHours) * time.Hour
	converter := audio.NewConverter(stage, transcriber, store, retention, logger)

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	analyzer := analysis.NewAnalyzer(analysis.Settings{
		BatchInterval:     cfg.BatchInterval(),
		MaxBatchSize:      cfg.Analysis.MaxBatchSize,
		SeverityThreshold: cfg.Analysis.SeverityThreshold,
	}, client, store, stage, notifier, logger)

	return daemon.New(daemon.Options{
		Environment: environment{cfg: cfg, stage: stage},
		Monitor:     monitor,
		Converter:   converter,
		Analyzer:    analyzer,
		Notifier:    notifier,
		Stats:       workflow.NewStats(),
		Logger:      logger,
		Timing:      daemon.TimingFromConfig(cfg),
		LockPath:    cfg.LockPath(),
	})
}

// environment prepares both the configured directories and the staging tree.
type environment struct {
	cfg   *config.Config
	stage *staging.Manager
}

func (e environment) EnsureDirectories() error {
	if err := e.cfg.EnsureDirectories(); err != nil {
		return err
	}
	return e.stage.EnsureDirectories()
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.EventType("dependency_snapshot"),
		logging.String("whisperx_model", cfg.Audio.WhisperXModel),
		logging.Bool("whisperx_cuda", cfg.Audio.WhisperXCUDAEnabled),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("calls_url", cfg.Source.CallsURL),
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, status := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required binary unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail),
			logging.ErrorHint("install it or set its path in the config, then run echowatch check"),
			logging.Impact("calls will fail conversion until it is available"),
		)
	}
}
