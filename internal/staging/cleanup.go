package staging

import (
	"context"
	"os"
	"time"

	"echowatch/internal/logging"
)

// CleanStaleResult contains the outcome of a stale file cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes processed and failed files older than maxAge.
// A non-positive maxAge disables cleanup.
func (m *Manager) CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}
	if maxAge <= 0 {
		return result
	}
	cutoff := time.Now().Add(-maxAge)

	for _, stage := range []Stage{Processed, Failed} {
		files, err := m.List(stage)
		if err != nil {
			if !os.IsNotExist(err) {
				result.Errors = append(result.Errors, CleanupError{Path: m.Dir(stage), Error: err})
			}
			continue
		}
		for _, path := range files {
			if ctx.Err() != nil {
				return result
			}
			info, err := os.Stat(path)
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				m.logger.Warn("failed to remove stale staging file",
					logging.String("path", path),
					logging.Error(err),
					logging.EventType("staging_cleanup_failed"),
					logging.ErrorHint("check staging_dir permissions"),
					logging.Impact("disk space not reclaimed"),
				)
				continue
			}
			result.Removed = append(result.Removed, path)
		}
	}
	if len(result.Removed) > 0 {
		m.logger.Info("removed stale staging files",
			logging.Int("count", len(result.Removed)),
			logging.Duration("max_age", maxAge),
			logging.EventType("staging_cleanup"),
		)
	}
	return result
}
