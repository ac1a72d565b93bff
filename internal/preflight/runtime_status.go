package preflight

import (
	"context"
	"net/url"
	"strings"

	"echowatch/internal/config"
)

// CheckLLMFromConfig evaluates the analysis LLM from config and connectivity.
func CheckLLMFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Analysis LLM"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	return CheckLLM(ctx, name, cfg.LLM)
}

// CheckNtfyFromConfig reports whether alerts have somewhere to go. It never
// publishes; use "echowatch test-notify" for an end-to-end check.
func CheckNtfyFromConfig(cfg *config.Config) Result {
	const name = "ntfy"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	parsed, err := url.Parse(topic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "Invalid topic URL"}
	}
	if !cfg.Notifications.Alerts {
		return Result{Name: name, Passed: true, Detail: "Configured (alerts off)"}
	}
	return Result{Name: name, Passed: true, Detail: "Configured"}
}
