package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
)

// Per-job results, also used as the metrics label
const (
	jobFinished   = "finished"
	jobRequeued   = "requeued"
	jobSkipped    = "skipped"
	jobUnresolved = "unresolved"
)

type jobResult struct {
	status  string
	records int
}

// runState is the per-run context shared by every job of a pass
type runState struct {
	// syncedAt is stamped on every record cleared during the run
	syncedAt    time.Time
	resolutions map[int64]domain.ListResolution
	currentJob  int64
}

// globalResolutionKey caches the resolution of jobs without a store
const globalResolutionKey int64 = -1

// processJob drives one job through started and then finished or queued.
// Recoverable outcomes are reported in the result; a returned error aborts the run.
func (r *Runner) processJob(ctx context.Context, job domain.Job, state *runState) (jobResult, error) {
	storeID := job.StoreID
	logger := r.logger.With(slog.Int64("job_id", job.ID))

	if job.IsAutoSync() && !r.settings.IsCronExportEnabled(storeID) {
		r.journal.Record(ctx, "Auto-Task skipped as auto-sync disabled for site", job.ID, storeID)
		return jobResult{status: jobSkipped}, nil
	}

	if err := r.jobs.MarkStarted(ctx, job.ID, r.now()); err != nil {
		return jobResult{}, err
	}

	target, err := r.resolveTarget(ctx, job, state)
	if err != nil {
		if !errors.Is(err, domain.ErrUnresolvedList) {
			return jobResult{}, err
		}
		if r.strictLists {
			logger.Warn("Job list not found, requeued without dispatch",
				slog.Int64("list_id", target.ListID),
			)
			if r.settings.IsLogEnabled() {
				r.journal.Record(ctx, fmt.Sprintf("Job Task [update] [Skipped] [unresolved list:%d]", target.ListID), job.ID, storeID)
			}
			if err := r.jobs.MarkRequeued(ctx, job.ID); err != nil {
				return jobResult{}, err
			}
			return jobResult{status: jobUnresolved}, nil
		}
		logger.Warn("Job list not found, dispatching without list guid",
			slog.Int64("list_id", target.ListID),
		)
	}

	customerIDs, err := r.records.FetchPending(ctx, job.ID)
	if err != nil {
		return jobResult{}, err
	}

	export := domain.JobExport{
		JobID:     job.ID,
		StoreID:   storeID,
		Target:    target,
		SendOptin: job.SendOptin,
		NewGroup:  false,
	}

	code, err := r.dispatcher.Send(ctx, customerIDs, export)
	if err != nil {
		return jobResult{}, fmt.Errorf("failed to dispatch job %d: %w", job.ID, err)
	}

	if !code.OK() {
		if err := r.jobs.MarkRequeued(ctx, job.ID); err != nil {
			return jobResult{}, err
		}
		dispatchErr := &domain.DispatchError{JobID: job.ID, Code: code}
		logger.Error("Job dispatch failed, requeued",
			slog.Int("result_code", int(code)),
			slog.Int("customers", len(customerIDs)),
			slog.String("error", dispatchErr.Error()),
		)
		if r.settings.IsLogEnabled() {
			r.journal.Record(ctx, fmt.Sprintf("generateAndSendCustomers [ReturnCode] [ERROR] [%d]", code), job.ID, storeID)
		}
		return jobResult{status: jobRequeued}, nil
	}

	if err := r.records.MarkSynced(ctx, job.ID, state.syncedAt); err != nil {
		return jobResult{}, err
	}
	r.journal.Record(ctx, fmt.Sprintf("Job Task [update] [Synced] [customer count:%d]", len(customerIDs)), job.ID, storeID)

	if err := r.jobs.MarkFinished(ctx, job.ID, r.now()); err != nil {
		return jobResult{}, err
	}
	r.journal.Record(ctx, fmt.Sprintf("Jobs [Update] [Complete] [%d]", job.ID), job.ID, storeID)

	logger.Info("Job synced", slog.Int("customers", len(customerIDs)))

	return jobResult{status: jobFinished, records: len(customerIDs)}, nil
}

// resolveTarget loads the store's lists once per run and applies the job's list and group
func (r *Runner) resolveTarget(ctx context.Context, job domain.Job, state *runState) (domain.ResolvedTarget, error) {
	key := globalResolutionKey
	if job.StoreID != nil {
		key = *job.StoreID
	}

	resolution, ok := state.resolutions[key]
	if !ok {
		var err error
		resolution, err = r.lists.Resolve(ctx, job.StoreID)
		if err != nil {
			return domain.ResolvedTarget{}, err
		}
		state.resolutions[key] = resolution
	}

	return r.lists.ApplyJobTarget(job, resolution)
}
