package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"echowatch/internal/config"
	"echowatch/internal/fileutil"
	"echowatch/internal/ledger"
	"echowatch/internal/logging"
	"echowatch/internal/services"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 10 * time.Second
)

// ItemRef identifies one call staged during a poll.
type ItemRef struct {
	CallID    int64
	SourceID  string
	Talkgroup string
	Path      string
}

// CallLedger is the subset of the ledger the monitor records into.
type CallLedger interface {
	Seen(ctx context.Context, sourceID string) (bool, error)
	RecordDownloaded(ctx context.Context, call ledger.Call) (*ledger.Call, error)
}

// Monitor polls the calls feed and stages new recordings.
type Monitor struct {
	cfg      config.Source
	inbound  string
	calls    CallLedger
	client   *http.Client
	limiter  *rate.Limiter
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithHTTPClient overrides the HTTP client used for feed and audio requests.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Monitor) {
		if client != nil {
			m.client = client
		}
	}
}

// WithPollInterval overrides the delay between feed fetches within a window.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// NewMonitor builds a monitor that stages downloads into inboundDir.
func NewMonitor(cfg config.Source, inboundDir string, calls CallLedger, logger *slog.Logger, opts ...Option) *Monitor {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	interval := defaultPollInterval
	if cfg.PollIntervalSeconds > 0 {
		interval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	limit := rate.Inf
	if cfg.DownloadsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.DownloadsPerMinute) / 60)
	}
	m := &Monitor{
		cfg:      cfg,
		inbound:  inboundDir,
		calls:    calls,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "ingest"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize validates the feed settings and probes the feed once.
func (m *Monitor) Initialize(ctx context.Context) error {
	if strings.TrimSpace(m.inbound) == "" {
		return services.Wrap(services.ErrConfiguration, "ingest", "initialize", "inbound directory not set", nil)
	}
	if m.calls == nil {
		return services.Wrap(services.ErrConfiguration, "ingest", "initialize", "ledger not configured", nil)
	}
	if err := os.MkdirAll(m.inbound, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ingest", "initialize", "create inbound directory", err)
	}
	calls, err := m.fetchFeed(ctx)
	if err != nil {
		return fmt.Errorf("probe feed: %w", err)
	}
	m.logger.Info("call feed reachable",
		logging.String("calls_url", m.cfg.CallsURL),
		logging.Int("calls_listed", len(calls)),
		logging.Duration("poll_interval", m.interval),
		logging.EventType("ingest_initialized"),
	)
	return nil
}

// errStaging marks a download that reached the monitor but could not be
// written into the inbound directory.
var errStaging = errors.New("inbound staging failed")

// Poll fetches the feed repeatedly until window elapses or AbortActive is
// called, returning every call staged along the way. An error is returned
// when no fetch in the window succeeded, or when calls were offered but none
// could be written to the inbound directory. After AbortActive, Poll returns
// immediately.
func (m *Monitor) Poll(ctx context.Context, window time.Duration) ([]ItemRef, error) {
	if window <= 0 {
		window = m.interval
	}
	pollCtx, cancel := context.WithTimeout(ctx, window)
	m.mu.Lock()
	if m.aborted {
		m.mu.Unlock()
		cancel()
		return nil, nil
	}
	m.cancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
		cancel()
	}()

	if err := os.MkdirAll(m.inbound, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "poll", "create inbound directory", err)
	}

	var (
		items      []ItemRef
		fetched    bool
		lastError  error
		stagingErr error
	)
	for {
		feed, err := m.fetchFeed(pollCtx)
		switch {
		case err == nil:
			fetched = true
			staged, serr := m.stageNew(pollCtx, feed)
			items = append(items, staged...)
			if serr != nil {
				stagingErr = serr
			}
		case pollCtx.Err() == nil:
			lastError = err
			logging.WarnWithContext(m.logger, "call feed fetch failed", "feed_fetch_failed",
				logging.Error(err),
				logging.ErrorHint("check source.calls_url and network connectivity"),
				logging.Impact("new calls delayed until the feed recovers"),
			)
		}

		timer := time.NewTimer(m.interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			if !fetched && lastError != nil {
				return items, lastError
			}
			if len(items) == 0 && stagingErr != nil {
				return items, stagingErr
			}
			return items, nil
		case <-timer.C:
		}
	}
}

// AbortActive cancels the in-flight poll window, if any, and makes every
// later Poll return at once.
func (m *Monitor) AbortActive() {
	m.mu.Lock()
	m.aborted = true
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Shutdown releases idle HTTP connections.
func (m *Monitor) Shutdown() {
	m.client.CloseIdleConnections()
}

// stageNew downloads unseen calls. The returned error is the last local
// staging failure, if any.
func (m *Monitor) stageNew(ctx context.Context, feed []FeedCall) ([]ItemRef, error) {
	var (
		items      []ItemRef
		stagingErr error
	)
	for _, call := range feed {
		if ctx.Err() != nil {
			break
		}
		sourceID := call.SourceID()
		if sourceID == "" || strings.TrimSpace(call.URL) == "" {
			continue
		}
		seen, err := m.calls.Seen(ctx, sourceID)
		if err != nil {
			logging.WarnWithContext(m.logger, "ledger lookup failed", "ledger_lookup_failed",
				logging.String("source_id", sourceID),
				logging.Error(err),
				logging.Impact("call skipped this poll"),
			)
			continue
		}
		if seen {
			continue
		}
		item, err := m.download(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, errStaging) {
				stagingErr = err
			}
			logging.WarnWithContext(m.logger, "call download failed", "call_download_failed",
				logging.String("source_id", sourceID),
				logging.Error(err),
				logging.ErrorHint("the call is retried on the next poll"),
				logging.Impact("call not staged"),
			)
			continue
		}
		m.logger.Info("call staged",
			logging.CallID(item.CallID),
			logging.String("source_id", sourceID),
			logging.String("talkgroup", item.Talkgroup),
			logging.String("file", filepath.Base(item.Path)),
			logging.EventType("call_staged"),
		)
		items = append(items, item)
	}
	return items, stagingErr
}

func (m *Monitor) download(ctx context.Context, call FeedCall) (ItemRef, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return ItemRef{}, err
	}
	audioURL, err := m.resolveAudioURL(call.URL)
	if err != nil {
		return ItemRef{}, services.Wrap(services.ErrValidation, "ingest", "download", "invalid audio url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return ItemRef{}, services.Wrap(services.ErrValidation, "ingest", "download", "build request", err)
	}
	m.decorate(req)
	resp, err := m.client.Do(req)
	if err != nil {
		return ItemRef{}, services.Wrap(services.ErrTransient, "ingest", "download", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ItemRef{}, services.Wrap(services.ErrTransient, "ingest", "download",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	name := fileName(call, audioURL)
	dest := filepath.Join(m.inbound, name)
	size, err := fileutil.WriteAtomic(dest, resp.Body)
	if err != nil {
		return ItemRef{}, fmt.Errorf("%w: %s: %w", errStaging, name, err)
	}
	if size == 0 {
		_ = os.Remove(dest)
		return ItemRef{}, services.Wrap(services.ErrValidation, "ingest", "download", "empty recording", nil)
	}

	recorded, err := m.calls.RecordDownloaded(ctx, ledger.Call{
		SourceID:        call.SourceID(),
		AudioFile:       name,
		Talkgroup:       call.Talkgroup,
		ReceivedAt:      call.ReceivedAt(),
		DurationSeconds: call.Duration,
	})
	if errors.Is(err, ledger.ErrDuplicate) {
		return ItemRef{}, fmt.Errorf("call %s already recorded: %w", call.SourceID(), err)
	}
	if err != nil {
		_ = os.Remove(dest)
		return ItemRef{}, fmt.Errorf("record call: %w", err)
	}
	return ItemRef{
		CallID:    recorded.ID,
		SourceID:  recorded.SourceID,
		Talkgroup: recorded.Talkgroup,
		Path:      dest,
	}, nil
}
