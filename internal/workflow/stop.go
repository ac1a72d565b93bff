package workflow

import (
	"sync"
	"time"
)

// StopSignal is a one-way shutdown flag shared by every worker.
type StopSignal struct {
	once sync.Once
	done chan struct{}
}

// NewStopSignal returns an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Signal sets the flag and wakes all waiters. Repeated calls are no-ops.
func (s *StopSignal) Signal() {
	s.once.Do(func() { close(s.done) })
}

// IsSet reports whether Signal has been called.
func (s *StopSignal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done exposes the signal for use in select statements.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks for up to d or until the signal fires, whichever is first.
// It returns true only when woken by the signal.
func (s *StopSignal) Wait(d time.Duration) bool {
	if s.IsSet() {
		return true
	}
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}
