package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"echowatch/internal/logging"
	"echowatch/internal/notifications"
	"echowatch/internal/services"
	"echowatch/internal/workflow"
)

// Worker names as they appear in logs and reports.
const (
	WorkerIngest  = "Ingest"
	WorkerConvert = "Convert"
	WorkerAnalyze = "Analyze"
	WorkerReport  = "Report"
)

var (
	// ErrAlreadyRunning is returned when Run is called on a daemon that has
	// already been started.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrLocked is returned when another instance holds the lock file.
	ErrLocked = errors.New("another echowatch instance is already running")
)

const finalReportTimeout = 5 * time.Second

// Options wires the daemon's collaborators.
type Options struct {
	Environment Environment
	Monitor     SourceMonitor
	Converter   Converter
	Analyzer    Analyzer
	Notifier    notifications.Service
	Stats       *workflow.Stats
	Logger      *slog.Logger
	Timing      Timing
	// LockPath enables single-instance locking when set.
	LockPath string
}

type workerHandle struct {
	name string
	done chan struct{}
}

func (h *workerHandle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Daemon supervises the pipeline workers for one process lifetime.
type Daemon struct {
	env      Environment
	monitor  SourceMonitor
	conv     Converter
	analyzer Analyzer
	notifier notifications.Service
	stats    *workflow.Stats
	reporter *workflow.Reporter
	timing   Timing
	logger   *slog.Logger
	lockPath string
	lock     *flock.Flock

	started atomic.Bool
	running atomic.Bool
	stop    *workflow.StopSignal
	stopMu  sync.Mutex

	handles    []*workerHandle
	workCtx    context.Context
	cancelWork context.CancelFunc

	downMu sync.Mutex
	down   []string
}

// New constructs a daemon. Environment and every collaborator are required.
func New(opts Options) (*Daemon, error) {
	if opts.Environment == nil || opts.Monitor == nil || opts.Converter == nil || opts.Analyzer == nil {
		return nil, errors.New("daemon requires environment, monitor, converter, and analyzer")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Stats == nil {
		opts.Stats = workflow.NewStats()
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(nil)
	}
	opts.Timing = opts.Timing.withDefaults()
	logger := logging.NewComponentLogger(opts.Logger, "daemon")
	d := &Daemon{
		env:      opts.Environment,
		monitor:  opts.Monitor,
		conv:     opts.Converter,
		analyzer: opts.Analyzer,
		notifier: opts.Notifier,
		stats:    opts.Stats,
		timing:   opts.Timing,
		logger:   logger,
		lockPath: opts.LockPath,
		stop:     workflow.NewStopSignal(),
	}
	d.reporter = &workflow.Reporter{
		Stats:  d.stats,
		Logger: logging.NewComponentLogger(opts.Logger, "stats"),
		Depths: d.conv.BacklogDepths,
		NextBatch: func(ctx context.Context) (time.Duration, error) {
			stats, err := d.analyzer.Stats(ctx)
			if err != nil {
				return 0, err
			}
			return time.Duration(stats.SecondsUntilNextBatch * float64(time.Second)), nil
		},
		WorkersDown: d.WorkersDown,
	}
	return d, nil
}

// Stats returns the shared counters.
func (d *Daemon) Stats() *workflow.Stats {
	return d.stats
}

// Running reports whether the workers are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// WorkersDown lists workers that exited after failing to initialize.
func (d *Daemon) WorkersDown() []string {
	d.downMu.Lock()
	defer d.downMu.Unlock()
	return slices.Clone(d.down)
}

// Run starts the workers and blocks until shutdown is requested by a signal,
// by ctx, or by Stop. It returns an error only when startup fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := d.env.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	if err := d.acquireLock(); err != nil {
		return err
	}

	d.stopMu.Lock()
	d.workCtx, d.cancelWork = context.WithCancel(context.WithoutCancel(ctx))
	d.running.Store(true)
	d.logger.Info("echowatch daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("join_timeout", d.timing.JoinTimeout),
		logging.EventType("daemon_started"),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	watchDone := make(chan struct{})
	defer close(watchDone)
	go d.watchShutdown(ctx, sigCh, watchDone)

	d.spawnWorkers()
	d.stopMu.Unlock()

	ticker := time.NewTicker(d.timing.LivenessPoll)
	defer ticker.Stop()
	for d.running.Load() && !d.stop.IsSet() {
		select {
		case <-ticker.C:
		case <-d.stop.Done():
		}
	}
	d.Stop()
	return nil
}

// Stop shuts the workers down and logs the final report. It is safe to call
// from any goroutine and more than once; a concurrent caller waits for the
// first to finish and then returns.
func (d *Daemon) Stop() {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()
	if !d.running.Load() {
		return
	}
	d.running.Store(false)
	d.logger.Info("shutdown requested; stopping workers",
		logging.EventType("daemon_stopping"),
	)
	d.stop.Signal()
	d.abortMonitor()

	for _, h := range d.handles {
		if !d.join(h) {
			logging.WarnWithContext(d.logger, "worker did not finish gracefully", "worker_join_timeout",
				logging.Worker(h.name),
				logging.Duration("timeout", d.timing.JoinTimeout),
				logging.ErrorHint("a collaborator call is blocking; check its logs"),
				logging.Impact("worker abandoned; in-flight item retried on next start"),
			)
		}
	}
	d.handles = nil
	if d.cancelWork != nil {
		d.cancelWork()
	}
	d.releaseLock()

	ctx, cancel := context.WithTimeout(context.Background(), finalReportTimeout)
	defer cancel()
	d.reporter.Report(ctx, "Final Statistics")
	d.logger.Info("echowatch daemon stopped", logging.EventType("daemon_stopped"))
}

func (d *Daemon) join(h *workerHandle) bool {
	timer := time.NewTimer(d.timing.JoinTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return !h.alive()
	}
}

func (d *Daemon) abortMonitor() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("source monitor abort panicked",
				logging.Any("panic", r),
				logging.EventType("monitor_abort_failed"),
			)
		}
	}()
	d.monitor.AbortActive()
}

// watchShutdown turns OS signals and ctx cancellation into the stop signal.
// Teardown itself happens on the Run goroutine.
func (d *Daemon) watchShutdown(ctx context.Context, sigCh <-chan os.Signal, done <-chan struct{}) {
	select {
	case sig := <-sigCh:
		d.logger.Info("shutdown signal received",
			logging.String("signal", sig.String()),
			logging.EventType("signal_received"),
		)
		d.stop.Signal()
	case <-ctx.Done():
		d.stop.Signal()
	case <-done:
	}
}

func (d *Daemon) acquireLock() error {
	if d.lockPath == "" {
		return nil
	}
	lock := flock.New(d.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	d.lock = lock
	return nil
}

func (d *Daemon) releaseLock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.EventType("lock_release_failed"),
		)
	}
	d.lock = nil
}

func (d *Daemon) spawnWorkers() {
	var ingestErr, convertErr error
	d.spawn(WorkerIngest, &ingestErr, workflow.Loop{
		Policy: d.timing.Ingest,
		Init: func(ctx context.Context) error {
			ingestErr = d.monitor.Initialize(ctx)
			return ingestErr
		},
		Step: func(ctx context.Context) error {
			items, err := d.monitor.Poll(ctx, d.timing.PollWindow)
			d.stats.AddIngested(len(items))
			return err
		},
		Teardown: d.monitor.Shutdown,
	})

	convert := workflow.Loop{
		Policy: d.timing.Convert,
		Step: func(ctx context.Context) error {
			n, err := d.conv.ConvertAllStaged(ctx)
			d.stats.AddConverted(n)
			return err
		},
	}
	if p, ok := d.conv.(Preparer); ok {
		convert.Init = func(ctx context.Context) error {
			convertErr = p.Prepare(ctx)
			return convertErr
		}
	}
	d.spawn(WorkerConvert, &convertErr, convert)

	d.spawn(WorkerAnalyze, nil, workflow.Loop{
		Policy: d.timing.Analyze,
		Step: func(ctx context.Context) error {
			outcome, err := d.analyzer.AttemptBatchIfReady(ctx)
			if err != nil {
				return err
			}
			if outcome != nil {
				d.stats.RecordBatch(outcome.OverallSeverity >= d.analyzer.SeverityThreshold())
			}
			return nil
		},
	})

	d.spawn(WorkerReport, nil, workflow.Loop{
		Policy:    workflow.RetryPolicy{SuccessWait: d.timing.ReportInterval, FailureWait: d.timing.ReportInterval},
		WaitFirst: true,
		Step: func(ctx context.Context) error {
			d.reporter.Report(ctx, "Periodic Statistics")
			return nil
		},
	})
}

// spawn starts loop on its own goroutine. initErr, when non-nil, is read
// after an init failure to explain why the worker went down.
func (d *Daemon) spawn(name string, initErr *error, loop workflow.Loop) {
	h := &workerHandle{name: name, done: make(chan struct{})}
	d.handles = append(d.handles, h)
	ctx := services.WithWorker(d.workCtx, name)
	loop.Name = name
	loop.Logger = logging.WithContext(ctx, d.logger)

	go func() {
		defer close(h.done)
		reason := loop.Run(ctx, d.stop, d.running.Load)
		if reason == workflow.ExitInitFailed {
			var cause error
			if initErr != nil {
				cause = *initErr
			}
			d.markDown(ctx, name, cause)
		}
		loop.Logger.Info("worker exited",
			logging.String("reason", string(reason)),
			logging.EventType("worker_exited"),
		)
	}()
	d.logger.Info("worker started",
		logging.Worker(name),
		logging.EventType("worker_started"),
	)
}

func (d *Daemon) markDown(ctx context.Context, name string, cause error) {
	d.downMu.Lock()
	d.down = append(d.down, name)
	d.downMu.Unlock()
	if err := d.notifier.NotifyWorkerDown(ctx, name, cause); err != nil {
		d.logger.Warn("worker down notification failed",
			logging.Worker(name),
			logging.Error(err),
			logging.EventType("notification_failed"),
		)
	}
}
