package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/api/dto"
	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/cuongbtq/mailup-sync/internal/worker/storage"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.Int64("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(*job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	beforeID, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		Mode:     req.Mode,
		StoreID:  req.StoreID,
		PageSize: req.PageSize,
		BeforeID: beforeID,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = toJobDTO(job)
	}
	if hasMore {
		resp.NextCursor = EncodeJobCursor(jobs[len(jobs)-1].ID)
	}

	c.JSON(http.StatusOK, resp)
}

// ListPendingRecords handles GET /api/v1/jobs/:job_id/records
// Lists the customers still waiting to be synced for a job
func (h *JobHandler) ListPendingRecords(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	if _, err := h.jobs.GetJobByID(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.Int64("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	records, err := h.jobs.PendingRecords(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to list pending records", slog.Int64("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending records"})
		return
	}

	resp := dto.PendingRecordsResponse{
		JobID:   jobID,
		Count:   len(records),
		Records: make([]dto.PendingRecordDTO, len(records)),
	}
	for i, r := range records {
		resp.Records[i] = dto.PendingRecordDTO{
			CustomerID: r.CustomerID,
			Email:      r.Email,
			LastSync:   formatTime(r.LastSync),
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) parseJobID(c *gin.Context) (int64, bool) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil || jobID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a positive integer"})
		return 0, false
	}
	return jobID, true
}

func toJobDTO(job domain.Job) dto.JobDTO {
	return dto.JobDTO{
		ID:         job.ID,
		Status:     job.Status,
		StoreID:    job.StoreID,
		Mode:       job.Mode,
		ListID:     job.ListID,
		GroupID:    job.GroupID,
		SendOptin:  job.SendOptin,
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
