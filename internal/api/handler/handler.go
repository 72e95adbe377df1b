package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/cuongbtq/mailup-sync/internal/worker/storage"
)

// JobReader is the read side of the job and sync record tables
type JobReader interface {
	GetJobByID(ctx context.Context, jobID int64) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	PendingRecords(ctx context.Context, jobID int64) ([]domain.SyncRecord, error)
}

// TriggerPublisher sends "run now" requests to the cron service
type TriggerPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Jobs   JobReader

	// Trigger is optional; without it the trigger endpoint answers 503
	Trigger           TriggerPublisher
	TriggerRoutingKey string

	// Health checks the database; nil means always healthy
	Health func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}
