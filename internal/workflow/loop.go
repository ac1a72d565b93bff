package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"echowatch/internal/logging"
)

// RetryPolicy holds the pauses a worker takes after each iteration.
type RetryPolicy struct {
	SuccessWait time.Duration
	FailureWait time.Duration
}

// ExitReason describes why a Loop returned.
type ExitReason string

const (
	ExitStopped    ExitReason = "stopped"
	ExitInitFailed ExitReason = "init_failed"
)

// Loop runs Step until the process stops, pausing per Policy between
// iterations. Step errors and panics are logged and never end the loop.
type Loop struct {
	Name   string
	Policy RetryPolicy
	Logger *slog.Logger

	// Init runs once before the first iteration. An error ends the worker
	// without retry.
	Init func(ctx context.Context) error
	// Step performs one unit of work.
	Step func(ctx context.Context) error
	// Teardown runs once on every exit path.
	Teardown func()
	// WaitFirst delays the first Step by Policy.SuccessWait.
	WaitFirst bool
}

// Run executes the loop on the calling goroutine. running is consulted at the
// top of every iteration alongside the stop signal.
func (l Loop) Run(ctx context.Context, stop *StopSignal, running func() bool) ExitReason {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if running == nil {
		running = func() bool { return true }
	}
	if l.Teardown != nil {
		defer l.Teardown()
	}

	if l.Init != nil {
		if err := guard(func() error { return l.Init(ctx) }); err != nil {
			logging.ErrorWithContext(logger, "worker initialization failed; worker will not run", "worker_init_failed",
				logging.Error(err),
				logging.ErrorHint("check configuration and source availability, then restart"),
				logging.Impact("this pipeline stage stays idle until restart"),
			)
			return ExitInitFailed
		}
	}

	if l.WaitFirst && stop.Wait(l.Policy.SuccessWait) {
		return ExitStopped
	}

	for running() && !stop.IsSet() {
		err := guard(func() error { return l.Step(ctx) })
		wait := l.Policy.SuccessWait
		if err != nil {
			wait = l.Policy.FailureWait
			logging.ErrorWithContext(logger, "worker iteration failed; retrying after backoff", "worker_step_failed",
				logging.Error(err),
				logging.Duration("retry_in", wait),
			)
		}
		if stop.Wait(wait) {
			break
		}
	}
	return ExitStopped
}

// guard converts a panic in fn into an error so one bad iteration cannot take
// the worker goroutine down.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
