package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"echowatch/internal/config"
)

const userAgent = "EchoWatch/0.1.0"

// Incident is one notable event extracted from a batch of transcripts.
type Incident struct {
	Type     string
	Location string
	Details  string
	Severity float64
}

// Alert describes a batch whose severity reached the alert threshold.
type Alert struct {
	BatchID   string
	Severity  float64
	CallCount int
	Summary   string
	Incidents []Incident
}

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyAlert(ctx context.Context, alert Alert) error
	NotifyWorkerDown(ctx context.Context, worker string, cause error) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		alerts:   cfg.Notifications.Alerts,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	alerts   bool
	errors   bool
}

// titleCase capitalizes each word. A Caser is stateful, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func (n *ntfyService) NotifyAlert(ctx context.Context, alert Alert) error {
	if !n.alerts {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Severity %.1f/10 across %d calls", alert.Severity, alert.CallCount)
	if summary := strings.TrimSpace(alert.Summary); summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
	}
	for _, incident := range alert.Incidents {
		b.WriteString("\n• ")
		b.WriteString(n.incidentLabel(incident))
	}

	priority := "high"
	if alert.Severity >= 9 {
		priority = "urgent"
	}
	return n.send(ctx, payload{
		title:    "EchoWatch - Alert",
		message:  b.String(),
		tags:     []string{"echowatch", "alert", "rotating_light"},
		priority: priority,
	})
}

func (n *ntfyService) incidentLabel(incident Incident) string {
	kind := strings.TrimSpace(incident.Type)
	if kind == "" {
		kind = "incident"
	}
	label := titleCase(strings.ReplaceAll(kind, "_", " "))
	if loc := strings.TrimSpace(incident.Location); loc != "" {
		label += " at " + loc
	}
	if incident.Severity > 0 {
		label += fmt.Sprintf(" (%.0f/10)", incident.Severity)
	}
	if details := strings.TrimSpace(incident.Details); details != "" {
		label += ": " + details
	}
	return label
}

func (n *ntfyService) NotifyWorkerDown(ctx context.Context, worker string, cause error) error {
	if !n.errors {
		return nil
	}
	message := fmt.Sprintf("⚠️ %s worker stopped and will not restart", titleCase(strings.TrimSpace(worker)))
	if cause != nil {
		message += ": " + strings.TrimSpace(cause.Error())
	}
	return n.send(ctx, payload{
		title:    "EchoWatch - Worker Down",
		message:  message,
		tags:     []string{"echowatch", "worker", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "EchoWatch - Error",
		message:  builder.String(),
		tags:     []string{"echowatch", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "EchoWatch - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"echowatch", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyAlert(context.Context, Alert) error              { return nil }
func (noopService) NotifyWorkerDown(context.Context, string, error) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error      { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
