package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CronRunner runs one cron pass
type CronRunner interface {
	Run(ctx context.Context) (RunReport, error)
}

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Runner     CronRunner
	Interval   time.Duration
	RunOnStart bool
}

// Worker triggers cron passes on a fixed interval and on demand.
// Passes never overlap inside one process; a trigger that arrives during a pass is
// coalesced into a single follow-up pass.
type Worker struct {
	logger     *slog.Logger
	runner     CronRunner
	interval   time.Duration
	runOnStart bool

	triggers chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.RWMutex
	last    RunReport
	lastErr error
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Worker{
		logger:     cfg.Logger,
		runner:     cfg.Runner,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
		triggers:   make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
}

// Start runs the scheduling loop until ctx is cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	w.wg.Add(1)
	defer w.wg.Done()

	w.logger.Info("Starting cron worker",
		slog.Duration("interval", w.interval),
		slog.Bool("run_on_start", w.runOnStart),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if w.runOnStart {
		w.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Cron worker stopping - context canceled")
			return nil

		case <-w.stopChan:
			w.logger.Info("Cron worker stopping - stopChan closed")
			return nil

		case <-ticker.C:
			w.runOnce(ctx, "interval")

		case <-w.triggers:
			w.runOnce(ctx, "trigger")
		}
	}
}

// Trigger requests a pass as soon as the worker is idle. It never blocks.
func (w *Worker) Trigger() bool {
	select {
	case w.triggers <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop gracefully stops the worker, waiting for a pass in progress
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping cron worker...")
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Cron worker stopped")
}

// LastRun returns the report and error of the most recent pass
func (w *Worker) LastRun() (RunReport, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.lastErr
}

func (w *Worker) runOnce(ctx context.Context, reason string) {
	report, err := w.runner.Run(ctx)

	w.mu.Lock()
	w.last, w.lastErr = report, err
	w.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.logger.Info("Cron pass interrupted by shutdown", slog.String("reason", reason))
			return
		}
		w.logger.Error("Cron pass failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Debug("Cron pass done",
		slog.String("reason", reason),
		slog.String("outcome", report.Outcome),
	)
}
