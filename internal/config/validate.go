package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.CallsURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/echowatch/config.toml"
		}
		return fmt.Errorf("source.calls_url is required. Edit %s (create with 'echowatch config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Source.CallsURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("source.calls_url must be an http(s) URL, got %q", c.Source.CallsURL)
	}
	if err := ensurePositiveMap(map[string]int{
		"source.poll_window_seconds":   c.Source.PollWindowSeconds,
		"source.poll_interval_seconds": c.Source.PollIntervalSeconds,
		"source.request_timeout":       c.Source.RequestTimeout,
		"source.downloads_per_minute":  c.Source.DownloadsPerMinute,
	}); err != nil {
		return err
	}
	if c.Source.PollIntervalSeconds > c.Source.PollWindowSeconds {
		return errors.New("source.poll_interval_seconds must not exceed source.poll_window_seconds")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.BatchIntervalSeconds <= 0 {
		return errors.New("analysis.batch_interval_seconds must be positive")
	}
	if c.Analysis.MaxBatchSize < 1 {
		return errors.New("analysis.max_batch_size must be >= 1")
	}
	if c.Analysis.SeverityThreshold < 0 || c.Analysis.SeverityThreshold > 10 {
		return errors.New("analysis.severity_threshold must be between 0 and 10")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.ingest_success_wait":  c.Workflow.IngestSuccessWait,
		"workflow.ingest_failure_wait":  c.Workflow.IngestFailureWait,
		"workflow.convert_success_wait": c.Workflow.ConvertSuccessWait,
		"workflow.convert_failure_wait": c.Workflow.ConvertFailureWait,
		"workflow.analyze_success_wait": c.Workflow.AnalyzeSuccessWait,
		"workflow.analyze_failure_wait": c.Workflow.AnalyzeFailureWait,
		"workflow.report_interval":      c.Workflow.ReportInterval,
		"workflow.join_timeout":         c.Workflow.JoinTimeout,
		"workflow.liveness_poll":        c.Workflow.LivenessPoll,
	})
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
