package workflow

import (
	"sync"
	"time"
)

// Counters are the cross-worker totals for one process run.
type Counters struct {
	ItemsIngested   int64
	ItemsConverted  int64
	BatchesAnalyzed int64
	AlertsRaised    int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Counters
	StartedAt time.Time
	Uptime    time.Duration
}

// Stats aggregates counters updated concurrently by the workers. Counters only
// grow; a fresh Stats is the only way to reset them.
type Stats struct {
	mu        sync.Mutex
	counters  Counters
	startedAt time.Time
	now       func() time.Time
}

// NewStats starts the uptime clock now.
func NewStats() *Stats {
	return NewStatsWithClock(time.Now)
}

// NewStatsWithClock uses now for both the start time and later uptime reads.
func NewStatsWithClock(now func() time.Time) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{startedAt: now(), now: now}
}

// AddIngested records n newly staged items.
func (s *Stats) AddIngested(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.counters.ItemsIngested += int64(n)
	s.mu.Unlock()
}

// AddConverted records n items converted and transcribed.
func (s *Stats) AddConverted(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.counters.ItemsConverted += int64(n)
	s.mu.Unlock()
}

// RecordBatch counts one analyzed batch and, when alerted, one alert.
func (s *Stats) RecordBatch(alerted bool) {
	s.mu.Lock()
	s.counters.BatchesAnalyzed++
	if alerted {
		s.counters.AlertsRaised++
	}
	s.mu.Unlock()
}

// Snapshot returns all counters as of a single instant.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	counters := s.counters
	s.mu.Unlock()
	uptime := s.now().Sub(s.startedAt)
	if uptime < 0 {
		uptime = 0
	}
	return Snapshot{Counters: counters, StartedAt: s.startedAt, Uptime: uptime}
}
