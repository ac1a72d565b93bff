package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"echowatch/internal/services"
)

// FeedCall is one entry of the calls feed.
type FeedCall struct {
	ID        CallID  `json:"id"`
	URL       string  `json:"url"`
	Talkgroup string  `json:"talkgroup"`
	Timestamp int64   `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// SourceID returns the feed identifier as a string.
func (c FeedCall) SourceID() string {
	return strings.TrimSpace(string(c.ID))
}

// CallID accepts the feed identifier as either a JSON string or number.
type CallID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *CallID) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*id = CallID(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("call id: %w", err)
	}
	*id = CallID(number.String())
	return nil
}

// ReceivedAt converts the feed timestamp (unix seconds) to a time.
func (c FeedCall) ReceivedAt() time.Time {
	if c.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(c.Timestamp, 0).UTC()
}

type feedPayload struct {
	Calls []FeedCall `json:"calls"`
}

const maxFeedBytes = 4 << 20

func (m *Monitor) fetchFeed(ctx context.Context) ([]FeedCall, error) {
	endpoint, err := m.feedURL()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "fetch feed", "build request", err)
	}
	m.decorate(req)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "fetch feed", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		marker := services.ErrTransient
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			marker = services.ErrConfiguration
		}
		return nil, services.Wrap(marker, "ingest", "fetch feed",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload feedPayload
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes))
	if err := decoder.Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "fetch feed", "decode payload", err)
	}
	return payload.Calls, nil
}

func (m *Monitor) feedURL() (string, error) {
	u, err := url.Parse(m.cfg.CallsURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", services.Wrap(services.ErrConfiguration, "ingest", "feed url",
			fmt.Sprintf("invalid calls_url %q", m.cfg.CallsURL), err)
	}
	if feedID := strings.TrimSpace(m.cfg.FeedID); feedID != "" {
		q := u.Query()
		q.Set("feed_id", feedID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// resolveAudioURL resolves a possibly relative recording URL against the feed.
func (m *Monitor) resolveAudioURL(raw string) (string, error) {
	base, err := url.Parse(m.cfg.CallsURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (m *Monitor) decorate(req *http.Request) {
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}
}

// fileName derives the staged file name for a call. The extension follows the
// recording URL and defaults to .mp3.
func fileName(call FeedCall, audioURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(audioURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	name := sanitize(call.SourceID())
	if tg := sanitize(call.Talkgroup); tg != "" {
		name += "-tg" + tg
	}
	if call.Timestamp > 0 {
		name = strconv.FormatInt(call.Timestamp, 10) + "-" + name
	}
	return name + ext
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
