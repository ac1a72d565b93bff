package workflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"echowatch/internal/workflow"
)

func runAsync(loop workflow.Loop, stop *workflow.StopSignal, running func() bool) <-chan workflow.ExitReason {
	done := make(chan workflow.ExitReason, 1)
	go func() { done <- loop.Run(context.Background(), stop, running) }()
	return done
}

func waitExit(t *testing.T, done <-chan workflow.ExitReason) workflow.ExitReason {
	t.Helper()
	select {
	case reason := <-done:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
		return ""
	}
}

func TestLoopContinuesAfterFailuresAndPanics(t *testing.T) {
	stop := workflow.NewStopSignal()
	var calls atomic.Int32
	loop := workflow.Loop{
		Name:   "convert",
		Policy: workflow.RetryPolicy{SuccessWait: time.Millisecond, FailureWait: time.Millisecond},
		Step: func(context.Context) error {
			switch n := calls.Add(1); {
			case n == 1:
				return errors.New("transient")
			case n == 2:
				panic("collaborator bug")
			case n >= 5:
				stop.Signal()
			}
			return nil
		},
	}
	if reason := waitExit(t, runAsync(loop, stop, nil)); reason != workflow.ExitStopped {
		t.Fatalf("reason = %s", reason)
	}
	if calls.Load() < 5 {
		t.Fatalf("expected loop to keep iterating, got %d calls", calls.Load())
	}
}

func TestLoopUsesFailureWaitAfterError(t *testing.T) {
	stop := workflow.NewStopSignal()
	var calls atomic.Int32
	loop := workflow.Loop{
		Policy: workflow.RetryPolicy{SuccessWait: time.Millisecond, FailureWait: time.Hour},
		Step: func(context.Context) error {
			calls.Add(1)
			return errors.New("down")
		},
	}
	done := runAsync(loop, stop, nil)
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt during the failure wait, got %d", got)
	}
	stop.Signal()
	waitExit(t, done)
}

func TestLoopExitsPromptlyWhenSignalledMidWait(t *testing.T) {
	stop := workflow.NewStopSignal()
	started := make(chan struct{})
	var once atomic.Bool
	loop := workflow.Loop{
		Policy: workflow.RetryPolicy{SuccessWait: time.Hour, FailureWait: time.Hour},
		Step: func(context.Context) error {
			if once.CompareAndSwap(false, true) {
				close(started)
			}
			return nil
		},
	}
	done := runAsync(loop, stop, nil)
	<-started
	begin := time.Now()
	stop.Signal()
	waitExit(t, done)
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("loop took %s to observe the stop signal", elapsed)
	}
}

func TestLoopInitFailureEndsWorkerWithoutSteps(t *testing.T) {
	stop := workflow.NewStopSignal()
	var steps atomic.Int32
	var tornDown atomic.Bool
	loop := workflow.Loop{
		Policy:   workflow.RetryPolicy{SuccessWait: time.Millisecond, FailureWait: time.Millisecond},
		Init:     func(context.Context) error { return errors.New("feed unreachable") },
		Step:     func(context.Context) error { steps.Add(1); return nil },
		Teardown: func() { tornDown.Store(true) },
	}
	if reason := waitExit(t, runAsync(loop, stop, nil)); reason != workflow.ExitInitFailed {
		t.Fatalf("reason = %s, want %s", reason, workflow.ExitInitFailed)
	}
	if steps.Load() != 0 {
		t.Fatal("step must not run after init failure")
	}
	if !tornDown.Load() {
		t.Fatal("teardown must run after init failure")
	}
	if stop.IsSet() {
		t.Fatal("init failure must not stop other workers")
	}
}

func TestLoopHonoursRunningFlag(t *testing.T) {
	stop := workflow.NewStopSignal()
	var running atomic.Bool
	running.Store(true)
	var calls atomic.Int32
	loop := workflow.Loop{
		Policy: workflow.RetryPolicy{SuccessWait: time.Millisecond, FailureWait: time.Millisecond},
		Step: func(context.Context) error {
			if calls.Add(1) == 3 {
				running.Store(false)
			}
			return nil
		},
	}
	waitExit(t, runAsync(loop, stop, running.Load))
	if calls.Load() != 3 {
		t.Fatalf("expected exactly 3 iterations, got %d", calls.Load())
	}
}

func TestLoopWaitFirstDelaysFirstStep(t *testing.T) {
	stop := workflow.NewStopSignal()
	var calls atomic.Int32
	loop := workflow.Loop{
		Policy:    workflow.RetryPolicy{SuccessWait: time.Hour, FailureWait: time.Hour},
		WaitFirst: true,
		Step:      func(context.Context) error { calls.Add(1); return nil },
	}
	done := runAsync(loop, stop, nil)
	time.Sleep(20 * time.Millisecond)
	stop.Signal()
	waitExit(t, done)
	if calls.Load() != 0 {
		t.Fatalf("expected no steps before the first interval, got %d", calls.Load())
	}
}
