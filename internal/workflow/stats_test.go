package workflow_test

import (
	"sync"
	"testing"
	"time"

	"echowatch/internal/workflow"
)

func TestStatsConcurrentIncrementsSumExactly(t *testing.T) {
	stats := workflow.NewStats()
	const goroutines, perGoroutine = 16, 500

	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func(alert bool) {
			defer wg.Done()
			for range perGoroutine {
				stats.AddIngested(2)
				stats.AddConverted(1)
				stats.RecordBatch(alert)
				_ = stats.Snapshot()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	snap := stats.Snapshot()
	total := int64(goroutines * perGoroutine)
	if snap.ItemsIngested != 2*total || snap.ItemsConverted != total || snap.BatchesAnalyzed != total {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	if snap.AlertsRaised != total/2 {
		t.Fatalf("alerts = %d, want %d", snap.AlertsRaised, total/2)
	}
}

func TestStatsIgnoresNonPositiveDeltas(t *testing.T) {
	stats := workflow.NewStats()
	stats.AddIngested(-3)
	stats.AddConverted(0)
	if snap := stats.Snapshot(); snap.ItemsIngested != 0 || snap.ItemsConverted != 0 {
		t.Fatalf("counters must never decrease or move on zero: %+v", snap.Counters)
	}
}

func TestStatsUptimeFromClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	stats := workflow.NewStatsWithClock(func() time.Time { return now })
	now = start.Add(3661 * time.Second)

	snap := stats.Snapshot()
	if snap.Uptime != 3661*time.Second {
		t.Fatalf("uptime = %s", snap.Uptime)
	}
	if !snap.StartedAt.Equal(start) {
		t.Fatalf("startedAt = %s", snap.StartedAt)
	}
}
