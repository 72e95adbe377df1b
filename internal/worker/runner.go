package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/dispatch"
	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/cuongbtq/mailup-sync/internal/worker/lock"
)

// Run outcomes, also used as the metrics label
const (
	RunOutcomeCompleted      = "completed"
	RunOutcomeAlreadyRunning = "already_running"
	RunOutcomeFailed         = "failed"
)

// JobRepository reads and transitions sync jobs
type JobRepository interface {
	FetchRunnableJobs(ctx context.Context) ([]domain.Job, error)
	MarkStarted(ctx context.Context, jobID int64, at time.Time) error
	MarkFinished(ctx context.Context, jobID int64, at time.Time) error
	MarkRequeued(ctx context.Context, jobID int64) error
	FindStuckJobs(ctx context.Context, startedBefore time.Time) ([]domain.Job, error)
}

// RecordStore reads and clears the per-customer sync flags of a job
type RecordStore interface {
	FetchPending(ctx context.Context, jobID int64) ([]int64, error)
	MarkSynced(ctx context.Context, jobID int64, syncedAt time.Time) error
}

// TargetResolver maps a job to the external list and group it exports to
type TargetResolver interface {
	Resolve(ctx context.Context, storeID *int64) (domain.ListResolution, error)
	ApplyJobTarget(job domain.Job, resolution domain.ListResolution) (domain.ResolvedTarget, error)
}

// StoreSettings exposes the store-scoped switches the runner consults
type StoreSettings interface {
	IsLogEnabled() bool
	IsCronExportEnabled(storeID *int64) bool
}

// Journal records operator-facing sync log lines
type Journal interface {
	Record(ctx context.Context, message string, jobID int64, storeID *int64)
}

// RunnerConfig holds the collaborators of a Runner
type RunnerConfig struct {
	Logger     *slog.Logger
	Locks      lock.Manager
	Jobs       JobRepository
	Records    RecordStore
	Lists      TargetResolver
	Dispatcher dispatch.Dispatcher
	Settings   StoreSettings
	Journal    Journal
	Metrics    *Metrics

	LockKey              string
	LockStaleAfter       time.Duration
	StuckJobThreshold    time.Duration
	StrictListResolution bool

	// Clock defaults to time.Now
	Clock func() time.Time
}

// RunReport summarizes one invocation of Run
type RunReport struct {
	Outcome        string
	Lock           lock.Outcome
	StartedAt      time.Time
	FinishedAt     time.Time
	JobsFinished   int
	JobsRequeued   int
	JobsSkipped    int
	JobsUnresolved int
	RecordsSynced  int
	StuckJobs      int
}

// Runner executes the queued sync jobs under the cron lock.
// A run is strictly sequential; overlapping runs are serialized by the lock only.
type Runner struct {
	logger     *slog.Logger
	locks      lock.Manager
	jobs       JobRepository
	records    RecordStore
	lists      TargetResolver
	dispatcher dispatch.Dispatcher
	settings   StoreSettings
	journal    Journal
	metrics    *Metrics

	lockKey        string
	lockStaleAfter time.Duration
	stuckAfter     time.Duration
	strictLists    bool
	now            func() time.Time
}

// NewRunner creates a new runner instance
func NewRunner(cfg *RunnerConfig) *Runner {
	r := &Runner{
		logger:         cfg.Logger,
		locks:          cfg.Locks,
		jobs:           cfg.Jobs,
		records:        cfg.Records,
		lists:          cfg.Lists,
		dispatcher:     cfg.Dispatcher,
		settings:       cfg.Settings,
		journal:        cfg.Journal,
		metrics:        cfg.Metrics,
		lockKey:        cfg.LockKey,
		lockStaleAfter: cfg.LockStaleAfter,
		stuckAfter:     cfg.StuckJobThreshold,
		strictLists:    cfg.StrictListResolution,
		now:            cfg.Clock,
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.lockKey == "" {
		r.lockKey = domain.CronLockID
	}
	if r.lockStaleAfter <= 0 {
		r.lockStaleAfter = lock.DefaultStaleAfter
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Run executes one cron pass. A lock held by a live run is not an error: the pass is skipped
// and the report says so. Any other failure aborts the pass and is returned as a
// *domain.RunFailedError once the lock has been released.
func (r *Runner) Run(ctx context.Context) (report RunReport, err error) {
	report.StartedAt = r.now()

	if r.settings.IsLogEnabled() {
		r.journal.Record(ctx, "Cron [Triggered]", 0, nil)
	}

	outcome, err := lock.Acquire(ctx, r.locks, r.lockKey, r.lockStaleAfter)
	report.Lock = outcome
	if err != nil {
		report.Outcome = RunOutcomeFailed
		report.FinishedAt = r.now()
		r.metrics.observeRun(report.Outcome, report.StartedAt, report.FinishedAt)
		return report, &domain.RunFailedError{Err: err}
	}

	if !outcome.Held() {
		r.logger.Info("Cron already running or locked", slog.String("lock", r.lockKey))
		report.Outcome = RunOutcomeAlreadyRunning
		report.FinishedAt = r.now()
		r.metrics.observeRun(report.Outcome, report.StartedAt, report.FinishedAt)
		return report, nil
	}

	if outcome == lock.OutcomeRecovered {
		r.logger.Warn("Stale cron lock force-released",
			slog.String("lock", r.lockKey),
			slog.Duration("stale_after", r.lockStaleAfter),
		)
	}

	state := &runState{
		syncedAt:    r.now().UTC(),
		resolutions: make(map[int64]domain.ListResolution),
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = &domain.RunFailedError{JobID: state.currentJob, Err: fmt.Errorf("panic: %v", recovered)}
		}

		// release must survive a cancelled run context
		if releaseErr := r.locks.Release(context.WithoutCancel(ctx), r.lockKey); releaseErr != nil {
			r.logger.Error("Failed to release cron lock",
				slog.String("lock", r.lockKey),
				slog.String("error", releaseErr.Error()),
			)
			if err == nil {
				err = &domain.RunFailedError{Err: fmt.Errorf("failed to release lock: %w", releaseErr)}
			}
		}

		report.FinishedAt = r.now()
		if err != nil {
			report.Outcome = RunOutcomeFailed
			r.logger.Error("Cron run failed",
				slog.String("error", err.Error()),
				slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
			)
		} else {
			report.Outcome = RunOutcomeCompleted
			if r.settings.IsLogEnabled() {
				r.journal.Record(ctx, "Cron [Completed]", 0, nil)
			}
			r.logger.Info("Cron run completed",
				slog.Int("finished", report.JobsFinished),
				slog.Int("requeued", report.JobsRequeued),
				slog.Int("skipped", report.JobsSkipped),
				slog.Int("unresolved", report.JobsUnresolved),
				slog.Int("records_synced", report.RecordsSynced),
				slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
			)
		}
		r.metrics.observeRun(report.Outcome, report.StartedAt, report.FinishedAt)
	}()

	report.StuckJobs = r.checkStuckJobs(ctx)

	jobs, err := r.jobs.FetchRunnableJobs(ctx)
	if err != nil {
		return report, &domain.RunFailedError{Err: err}
	}

	r.logger.Debug("Runnable jobs fetched", slog.Int("count", len(jobs)))

	for _, job := range jobs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, &domain.RunFailedError{Err: ctxErr}
		}

		state.currentJob = job.ID
		result, err := r.processJob(ctx, job, state)
		if err != nil {
			return report, &domain.RunFailedError{JobID: job.ID, Err: err}
		}
		report.add(result)
		r.metrics.observeJob(result.status, result.records)
	}

	return report, nil
}

// checkStuckJobs reports jobs left in started state for too long. They are re-run like any
// other started job; the check only makes them visible.
func (r *Runner) checkStuckJobs(ctx context.Context) int {
	if r.stuckAfter <= 0 {
		return 0
	}

	stuck, err := r.jobs.FindStuckJobs(ctx, r.now().Add(-r.stuckAfter))
	if err != nil {
		r.logger.Warn("Failed to check for stuck jobs", slog.String("error", err.Error()))
		return 0
	}

	for _, job := range stuck {
		attrs := []any{slog.Int64("job_id", job.ID), slog.Duration("threshold", r.stuckAfter)}
		if job.StartedAt != nil {
			attrs = append(attrs, slog.Time("started_at", *job.StartedAt))
		}
		r.logger.Warn("Job stuck in started state, re-running", attrs...)
	}

	r.metrics.setStuckJobs(len(stuck))
	return len(stuck)
}

func (rep *RunReport) add(result jobResult) {
	switch result.status {
	case jobFinished:
		rep.JobsFinished++
		rep.RecordsSynced += result.records
	case jobRequeued:
		rep.JobsRequeued++
	case jobSkipped:
		rep.JobsSkipped++
	case jobUnresolved:
		rep.JobsUnresolved++
	}
}
