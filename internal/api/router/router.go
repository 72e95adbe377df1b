package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/api/handler"
	"github.com/cuongbtq/mailup-sync/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures the status API: health, metrics and the read-only job routes
func SetupRouter(deps *handler.Dependencies, gatherer prometheus.Gatherer, service string) *gin.Engine {
	r := SetupOpsRouter(deps.Logger, deps.Health, nil, gatherer, service)
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)
	cronHandler := handler.NewCronHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/records - Customers still pending for a job
			jobs.GET("/:job_id/records", jobHandler.ListPendingRecords)
		}

		// POST /api/v1/cron/trigger - Request a cron pass now
		v1.POST("/cron/trigger", cronHandler.TriggerRun)
	}

	return r
}

// LastRunSource exposes the most recent cron pass of a running worker
type LastRunSource interface {
	LastRun() (worker.RunReport, error)
}

// SetupOpsRouter returns a router serving only /health and /metrics.
// When runs is set, /health also reports the latest cron pass.
func SetupOpsRouter(logger *slog.Logger, health func(ctx context.Context) error, runs LastRunSource, gatherer prometheus.Gatherer, service string) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": service,
					"error":   err.Error(),
				})
				return
			}
		}
		body := gin.H{
			"status":  "healthy",
			"service": service,
		}
		if runs != nil {
			body["last_run"] = lastRunPayload(runs)
		}
		c.JSON(http.StatusOK, body)
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

// lastRunPayload renders the latest pass, nil before the first one completes
func lastRunPayload(runs LastRunSource) gin.H {
	report, err := runs.LastRun()
	if report.StartedAt.IsZero() && err == nil {
		return nil
	}

	payload := gin.H{
		"outcome":         report.Outcome,
		"lock":            report.Lock.String(),
		"started_at":      report.StartedAt.UTC().Format(time.RFC3339),
		"finished_at":     report.FinishedAt.UTC().Format(time.RFC3339),
		"jobs_finished":   report.JobsFinished,
		"jobs_requeued":   report.JobsRequeued,
		"jobs_skipped":    report.JobsSkipped,
		"jobs_unresolved": report.JobsUnresolved,
		"records_synced":  report.RecordsSynced,
		"stuck_jobs":      report.StuckJobs,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	return payload
}
