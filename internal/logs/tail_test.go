package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"echowatch/internal/logs"
)

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echowatch.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.LastLines(path, 2)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}

	lines, _, err = logs.LastLines(path, 10)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if len(lines) != 3 || lines[0] != "a" {
		t.Fatalf("unexpected short file lines: %#v", lines)
	}
}

func TestLastLinesMissingFile(t *testing.T) {
	lines, offset, err := logs.LastLines(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("expected nothing, got %#v at %d", lines, offset)
	}
}

func TestStreamFiltersHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echowatch.log")
	content := "worker=Ingest polled\nworker=Convert converted\nworker=Ingest staged\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var got collector
	if err := logs.Stream(context.Background(), path, logs.Options{Lines: 10, Match: "Ingest"}, got.add); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	lines := got.snapshot()
	if len(lines) != 2 || lines[1] != "worker=Ingest staged" {
		t.Fatalf("unexpected filtered lines: %#v", lines)
	}
}

func TestStreamFollowsAppendsAndPointerSwitch(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "echowatch-1.log")
	second := filepath.Join(dir, "echowatch-2.log")
	pointer := filepath.Join(dir, "echowatch.log")
	appendLine(t, first, "start")
	if err := os.Symlink(first, pointer); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got collector
	done := make(chan error, 1)
	go func() {
		done <- logs.Stream(ctx, pointer, logs.Options{Lines: 1, Follow: true, Poll: 10 * time.Millisecond}, got.add)
	}()

	waitFor(t, func() bool { return len(got.snapshot()) == 1 })
	appendLine(t, first, "next")
	waitFor(t, func() bool { return len(got.snapshot()) == 2 })

	appendLine(t, second, "second run")
	if err := os.Remove(pointer); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(got.snapshot()) == 3 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Stream returned %v", err)
	}
	lines := got.snapshot()
	if lines[0] != "start" || lines[1] != "next" || lines[2] != "second run" {
		t.Fatalf("unexpected followed lines: %#v", lines)
	}
}
