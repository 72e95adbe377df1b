package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/api/dto"
	"github.com/cuongbtq/mailup-sync/internal/api/handler"
	"github.com/cuongbtq/mailup-sync/internal/testutil"
	"github.com/cuongbtq/mailup-sync/internal/worker"
	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/cuongbtq/mailup-sync/internal/worker/lock"
	"github.com/cuongbtq/mailup-sync/internal/worker/storage"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type published struct {
	routingKey string
	body       []byte
}

type fakePublisher struct {
	err      error
	messages []published
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{routingKey: routingKey, body: body})
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func newTestRouter(t *testing.T, publisher handler.TriggerPublisher) (*gin.Engine, *sqlx.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps := &handler.Dependencies{
		Logger:            logger,
		Jobs:              storage.NewStorage(db, logger),
		TriggerRoutingKey: "mailup.trigger",
		Health:            func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if publisher != nil {
		deps.Trigger = publisher
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "mailup_sync_test_total", Help: "test"}))

	return SetupRouter(deps, reg, "mailup-api-service"), db
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r, db := newTestRouter(t, nil)

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = serve(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mailup_sync_test_total")

	db.Close()
	w = serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

type fakeRuns struct {
	report worker.RunReport
	err    error
}

func (f *fakeRuns) LastRun() (worker.RunReport, error) {
	return f.report, f.err
}

func TestOpsHealth_LastRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		runs     *fakeRuns
		wantRun  bool
		checkRun func(t *testing.T, run map[string]interface{})
	}{
		{
			name: "before the first pass",
			runs: &fakeRuns{},
		},
		{
			name: "completed pass",
			runs: &fakeRuns{report: worker.RunReport{
				Outcome:       worker.RunOutcomeCompleted,
				Lock:          lock.OutcomeRecovered,
				StartedAt:     started,
				FinishedAt:    started.Add(3 * time.Second),
				JobsFinished:  2,
				RecordsSynced: 5,
			}},
			wantRun: true,
			checkRun: func(t *testing.T, run map[string]interface{}) {
				assert.Equal(t, worker.RunOutcomeCompleted, run["outcome"])
				assert.Equal(t, "recovered", run["lock"])
				assert.Equal(t, "2024-03-01T12:00:00Z", run["started_at"])
				assert.Equal(t, float64(2), run["jobs_finished"])
				assert.Equal(t, float64(5), run["records_synced"])
				assert.NotContains(t, run, "error")
			},
		},
		{
			name: "failed pass",
			runs: &fakeRuns{
				report: worker.RunReport{Outcome: worker.RunOutcomeFailed, StartedAt: started},
				err:    errors.New("cron run failed on job 4: boom"),
			},
			wantRun: true,
			checkRun: func(t *testing.T, run map[string]interface{}) {
				assert.Equal(t, worker.RunOutcomeFailed, run["outcome"])
				assert.Equal(t, "cron run failed on job 4: boom", run["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SetupOpsRouter(logger, nil, tt.runs, nil, "mailup-cron-service")

			w := serve(r, http.MethodGet, "/health", "")
			require.Equal(t, http.StatusOK, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "healthy", body["status"])

			if !tt.wantRun {
				assert.Nil(t, body["last_run"])
				return
			}
			run, ok := body["last_run"].(map[string]interface{})
			require.True(t, ok)
			tt.checkRun(t, run)
		})
	}
}

func TestGetJob(t *testing.T) {
	r, db := newTestRouter(t, nil)
	id := testutil.InsertJob(t, db, domain.JobStatusQueued, domain.SyncModeAuto, int64Ptr(3), 10, 5)
	store := storage.NewStorage(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, store.MarkStarted(context.Background(), id, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "existing job", path: "/api/v1/jobs/1", wantStatus: http.StatusOK},
		{name: "missing job", path: "/api/v1/jobs/99", wantStatus: http.StatusNotFound},
		{name: "invalid id", path: "/api/v1/jobs/abc", wantStatus: http.StatusBadRequest},
		{name: "zero id", path: "/api/v1/jobs/0", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	w := serve(r, http.MethodGet, "/api/v1/jobs/1", "")
	var job dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, id, job.ID)
	assert.Equal(t, domain.JobStatusStarted, job.Status)
	assert.Equal(t, domain.SyncModeAuto, job.Mode)
	require.NotNil(t, job.StoreID)
	assert.Equal(t, int64(3), *job.StoreID)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, "2024-03-01T10:00:00Z", *job.StartedAt)
	assert.Nil(t, job.FinishedAt)
}

func TestListJobs_Pagination(t *testing.T) {
	r, db := newTestRouter(t, nil)
	for i := 0; i < 5; i++ {
		testutil.InsertJob(t, db, domain.JobStatusQueued, domain.SyncModeManual, nil, 10, 0)
	}
	testutil.InsertJob(t, db, domain.JobStatusFinished, domain.SyncModeManual, nil, 10, 0)

	var seen []int64
	cursor := ""
	for page := 0; page < 5; page++ {
		target := "/api/v1/jobs?status=queued&page_size=2"
		if cursor != "" {
			target += "&cursor=" + cursor
		}
		w := serve(r, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		for _, job := range resp.Jobs {
			seen = append(seen, job.ID)
		}
		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	assert.Equal(t, []int64{5, 4, 3, 2, 1}, seen)
}

func TestListJobs_BadRequests(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	for _, target := range []string{
		"/api/v1/jobs?status=running",
		"/api/v1/jobs?mode=sometimes",
		"/api/v1/jobs?cursor=%25%25",
		"/api/v1/jobs?store_id=abc",
	} {
		t.Run(target, func(t *testing.T) {
			w := serve(r, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListPendingRecords(t *testing.T) {
	r, db := newTestRouter(t, nil)
	id := testutil.InsertJob(t, db, domain.JobStatusQueued, domain.SyncModeManual, nil, 10, 0)
	testutil.InsertCustomer(t, db, 100, "a@example.com")
	testutil.InsertCustomer(t, db, 101, "b@example.com")
	testutil.InsertSyncRecord(t, db, 100, id, true)
	testutil.InsertSyncRecord(t, db, 101, id, false)

	w := serve(r, http.MethodGet, "/api/v1/jobs/1/records", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.PendingRecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, int64(100), resp.Records[0].CustomerID)
	assert.Equal(t, "a@example.com", resp.Records[0].Email)

	w = serve(r, http.MethodGet, "/api/v1/jobs/7/records", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerRun(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r, _ := newTestRouter(t, nil)
		w := serve(r, http.MethodPost, "/api/v1/cron/trigger", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("publishes trigger", func(t *testing.T) {
		publisher := &fakePublisher{}
		r, _ := newTestRouter(t, publisher)

		w := serve(r, http.MethodPost, "/api/v1/cron/trigger", `{"requested_by":"ops"}`)
		assert.Equal(t, http.StatusAccepted, w.Code)

		require.Len(t, publisher.messages, 1)
		assert.Equal(t, "mailup.trigger", publisher.messages[0].routingKey)

		var msg dto.TriggerRunRequest
		require.NoError(t, json.Unmarshal(publisher.messages[0].body, &msg))
		assert.Equal(t, "api", msg.Reason)
		assert.Equal(t, "ops", msg.RequestedBy)
	})

	t.Run("empty body", func(t *testing.T) {
		publisher := &fakePublisher{}
		r, _ := newTestRouter(t, publisher)

		w := serve(r, http.MethodPost, "/api/v1/cron/trigger", "")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Len(t, publisher.messages, 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		publisher := &fakePublisher{}
		r, _ := newTestRouter(t, publisher)

		w := serve(r, http.MethodPost, "/api/v1/cron/trigger", `{oops`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, publisher.messages)
	})

	t.Run("broker failure", func(t *testing.T) {
		r, _ := newTestRouter(t, &fakePublisher{err: errors.New("channel closed")})

		w := serve(r, http.MethodPost, "/api/v1/cron/trigger", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
