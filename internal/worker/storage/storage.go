package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, status, store_id, mode, list_id, group_id, send_optin, start_datetime, finish_datetime`

// Storage handles all database operations for the cron runner.
// Queries use '?' placeholders and are rebound for the driver in use.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// FetchRunnableJobs returns queued and started jobs in storage order.
// Started jobs are left over from an interrupted run and are re-run.
func (s *Storage) FetchRunnableJobs(ctx context.Context) ([]domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM mailup_jobs
		WHERE status IN (?, ?)
		ORDER BY id ASC
	`)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusQueued, domain.JobStatusStarted); err != nil {
		return nil, fmt.Errorf("failed to fetch runnable jobs: %w", err)
	}

	return jobs, nil
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID int64) (*domain.Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM mailup_jobs WHERE id = ?`)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// MarkStarted moves a job to started and stamps its start time
func (s *Storage) MarkStarted(ctx context.Context, jobID int64, at time.Time) error {
	query := s.db.Rebind(`
		UPDATE mailup_jobs
		SET status = ?, start_datetime = ?
		WHERE id = ?
	`)

	return s.updateJob(ctx, query, jobID, domain.JobStatusStarted, at.UTC(), jobID)
}

// MarkFinished moves a job to finished and stamps its finish time
func (s *Storage) MarkFinished(ctx context.Context, jobID int64, at time.Time) error {
	query := s.db.Rebind(`
		UPDATE mailup_jobs
		SET status = ?, finish_datetime = ?
		WHERE id = ?
	`)

	return s.updateJob(ctx, query, jobID, domain.JobStatusFinished, at.UTC(), jobID)
}

// MarkRequeued returns a job to the queue after a failed dispatch
func (s *Storage) MarkRequeued(ctx context.Context, jobID int64) error {
	query := s.db.Rebind(`UPDATE mailup_jobs SET status = ? WHERE id = ?`)

	return s.updateJob(ctx, query, jobID, domain.JobStatusQueued, jobID)
}

func (s *Storage) updateJob(ctx context.Context, query string, jobID int64, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %d: %w", jobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("failed to update job %d: %w", jobID, domain.ErrJobNotFound)
	}

	s.logger.Debug("Job status updated",
		slog.Int64("job_id", jobID),
		slog.Any("status", args[0]),
	)

	return nil
}

// FindStuckJobs returns jobs that have been in started state since before the given time
func (s *Storage) FindStuckJobs(ctx context.Context, startedBefore time.Time) ([]domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM mailup_jobs
		WHERE status = ? AND start_datetime < ?
		ORDER BY id ASC
	`)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusStarted, startedBefore.UTC()); err != nil {
		return nil, fmt.Errorf("failed to find stuck jobs: %w", err)
	}

	return jobs, nil
}

// JobFilter narrows ListJobs results
type JobFilter struct {
	Status   string
	Mode     string
	StoreID  *int64
	PageSize int
	// BeforeID is the keyset cursor: only jobs with a smaller id are returned
	BeforeID int64
}

// ListJobs returns jobs newest first, fetching one extra row so callers can detect more pages
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM mailup_jobs WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Mode != "" {
		query += " AND mode = ?"
		args = append(args, filter.Mode)
	}

	if filter.StoreID != nil {
		query += " AND store_id = ?"
		args = append(args, *filter.StoreID)
	}

	if filter.BeforeID > 0 {
		query += " AND id < ?"
		args = append(args, filter.BeforeID)
	}

	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
