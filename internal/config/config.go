package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Source contains configuration for the radio call feed.
type Source struct {
	CallsURL            string `toml:"calls_url"`
	FeedID              string `toml:"feed_id"`
	APIKey              string `toml:"api_key"`
	UserAgent           string `toml:"user_agent"`
	PollWindowSeconds   int    `toml:"poll_window_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	RequestTimeout      int    `toml:"request_timeout"`
	DownloadsPerMinute  int    `toml:"downloads_per_minute"`
}

// Audio contains configuration for conversion and transcription.
type Audio struct {
	FFmpegBinary            string `toml:"ffmpeg_binary"`
	WhisperXModel           string `toml:"whisperx_model"`
	WhisperXCUDAEnabled     bool   `toml:"whisperx_cuda_enabled"`
	Language                string `toml:"language"`
	ProcessedRetentionHours int    `toml:"processed_retention_hours"`
}

// LLM contains connection settings for the analysis model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis contains the batching policy and alert threshold.
type Analysis struct {
	BatchIntervalSeconds int     `toml:"batch_interval_seconds"`
	MaxBatchSize         int     `toml:"max_batch_size"`
	SeverityThreshold    float64 `toml:"severity_threshold"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Alerts         bool   `toml:"alerts"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains per-worker wait intervals and shutdown bounds, in seconds.
type Workflow struct {
	IngestSuccessWait  int `toml:"ingest_success_wait"`
	IngestFailureWait  int `toml:"ingest_failure_wait"`
	ConvertSuccessWait int `toml:"convert_success_wait"`
	ConvertFailureWait int `toml:"convert_failure_wait"`
	AnalyzeSuccessWait int `toml:"analyze_success_wait"`
	AnalyzeFailureWait int `toml:"analyze_failure_wait"`
	ReportInterval     int `toml:"report_interval"`
	JoinTimeout        int `toml:"join_timeout"`
	LivenessPoll       int `toml:"liveness_poll"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for EchoWatch.
//
// Configuration sections by subsystem:
//   - Paths: staging, state, and log directories
//   - Source: call feed location, polling window, and download throttle
//   - Audio: ffmpeg conversion and WhisperX transcription
//   - LLM: analysis model connection settings
//   - Analysis: batching policy and alert severity threshold
//   - Notifications: ntfy push notification settings
//   - Workflow: worker wait intervals and shutdown bounds
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Audio         Audio         `toml:"audio"`
	LLM           LLM           `toml:"llm"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/echowatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("echowatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. Staging
// subdirectories are owned by the staging package.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "echowatch.lock")
}

// PollWindow bounds a single ingest poll.
func (c *Config) PollWindow() time.Duration {
	return seconds(c.Source.PollWindowSeconds)
}

// BatchInterval is the minimum spacing between analysis batches.
func (c *Config) BatchInterval() time.Duration {
	return seconds(c.Analysis.BatchIntervalSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy with credentials masked, safe to print.
func (c Config) Redacted() Config {
	mask := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return ""
		}
		return "********"
	}
	c.Source.APIKey = mask(c.Source.APIKey)
	c.LLM.APIKey = mask(c.LLM.APIKey)
	return c
}

// TOML renders the configuration in the file format Load reads.
func (c Config) TOML() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
