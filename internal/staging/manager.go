// Package staging owns the on-disk layout calls move through between workers.
//
// Each call is a file that travels inbound → inprogress → transcribing and
// finally processed (or failed). Directory counts double as the backlog
// depths shown in status reports.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"echowatch/internal/fileutil"
	"echowatch/internal/logging"
)

// Stage names a staging subdirectory.
type Stage string

const (
	Inbound      Stage = "inbound"
	InProgress   Stage = "inprogress"
	Transcribing Stage = "transcribing"
	Processed    Stage = "processed"
	Failed       Stage = "failed"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{Inbound, InProgress, Transcribing, Processed, Failed}

// Depths summarizes items waiting at each active stage.
type Depths struct {
	Staged           int
	InProgress       int
	AwaitingAnalysis int
}

// Manager resolves and maintains the staging tree rooted at a directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager returns a manager for root.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{root: root, logger: logging.NewComponentLogger(logger, "staging")}
}

// Root returns the staging root.
func (m *Manager) Root() string { return m.root }

// Dir returns the directory for a stage.
func (m *Manager) Dir(stage Stage) string {
	return filepath.Join(m.root, string(stage))
}

// EnsureDirectories creates the root and every stage directory.
func (m *Manager) EnsureDirectories() error {
	if strings.TrimSpace(m.root) == "" {
		return fmt.Errorf("staging root is not configured")
	}
	for _, stage := range Stages {
		if err := os.MkdirAll(m.Dir(stage), 0o755); err != nil {
			return fmt.Errorf("create staging directory %q: %w", m.Dir(stage), err)
		}
	}
	return nil
}

// Depths counts visible files at the inbound, inprogress, and transcribing stages.
func (m *Manager) Depths(ctx context.Context) (Depths, error) {
	var d Depths
	targets := []struct {
		stage Stage
		dst   *int
	}{
		{Inbound, &d.Staged},
		{InProgress, &d.InProgress},
		{Transcribing, &d.AwaitingAnalysis},
	}
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return Depths{}, err
		}
		files, err := m.List(target.stage)
		if err != nil {
			return Depths{}, err
		}
		*target.dst = len(files)
	}
	return d, nil
}

// List returns visible files in stage, oldest first. Extensions, when given,
// restrict the result (".mp3", ".txt").
func (m *Manager) List(stage Stage, extensions ...string) ([]string, error) {
	entries, err := os.ReadDir(m.Dir(stage))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", stage, err)
	}
	type entry struct {
		path string
		mod  time.Time
	}
	var found []entry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if len(extensions) > 0 && !hasExtension(name, extensions) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, entry{path: filepath.Join(m.Dir(stage), name), mod: info.ModTime()})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].mod.Equal(found[j].mod) {
			return found[i].path < found[j].path
		}
		return found[i].mod.Before(found[j].mod)
	})
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// Move relocates path into stage, keeping its base name, and returns the new path.
func (m *Manager) Move(path string, to Stage) (string, error) {
	dst := filepath.Join(m.Dir(to), filepath.Base(path))
	if err := fileutil.MoveFile(path, dst); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", filepath.Base(path), to, err)
	}
	return dst, nil
}

// Recover returns files stranded in inprogress by an unclean shutdown to inbound.
func (m *Manager) Recover() (int, error) {
	files, err := m.List(InProgress)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, path := range files {
		if _, err := m.Move(path, Inbound); err != nil {
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		m.logger.Info("requeued interrupted conversions",
			logging.Int("count", moved),
			logging.EventType("staging_recovered"),
		)
	}
	return moved, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
