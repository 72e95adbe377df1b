package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
	"github.com/cuongbtq/mailup-sync/internal/worker/lock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeLocks is an in-memory lock.Manager
type fakeLocks struct {
	held          bool
	stale         bool
	tryErr        error
	releaseErr    error
	releases      int
	forceReleases int
}

func (f *fakeLocks) TryAcquire(ctx context.Context, id string) (lock.Result, error) {
	if f.tryErr != nil {
		return lock.AlreadyLocked, f.tryErr
	}
	if f.held {
		return lock.AlreadyLocked, nil
	}
	f.held = true
	return lock.Acquired, nil
}

func (f *fakeLocks) IsStale(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	return f.stale, nil
}

func (f *fakeLocks) ForceRelease(ctx context.Context, id string) error {
	f.forceReleases++
	f.held = false
	f.stale = false
	return nil
}

func (f *fakeLocks) Release(ctx context.Context, id string) error {
	f.releases++
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.held = false
	return nil
}

// memJobs is an in-memory JobRepository
type memJobs struct {
	jobs      map[int64]*domain.Job
	mutations int
	fetchErr  error
}

func newMemJobs(jobs ...domain.Job) *memJobs {
	m := &memJobs{jobs: make(map[int64]*domain.Job)}
	for i := range jobs {
		job := jobs[i]
		m.jobs[job.ID] = &job
	}
	return m
}

func (m *memJobs) FetchRunnableJobs(ctx context.Context) ([]domain.Job, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusStarted {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memJobs) get(id int64) (*domain.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, domain.ErrJobNotFound)
	}
	m.mutations++
	return job, nil
}

func (m *memJobs) MarkStarted(ctx context.Context, id int64, at time.Time) error {
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusStarted
	job.StartedAt = &at
	return nil
}

func (m *memJobs) MarkFinished(ctx context.Context, id int64, at time.Time) error {
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusFinished
	job.FinishedAt = &at
	return nil
}

func (m *memJobs) MarkRequeued(ctx context.Context, id int64) error {
	job, err := m.get(id)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusQueued
	return nil
}

func (m *memJobs) FindStuckJobs(ctx context.Context, startedBefore time.Time) ([]domain.Job, error) {
	var out []domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusStarted && job.StartedAt != nil && job.StartedAt.Before(startedBefore) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobs) status(id int64) string {
	return m.jobs[id].Status
}

// memRecords is an in-memory RecordStore
type memRecords struct {
	pending map[int64][]int64
	synced  map[int64]time.Time
}

func newMemRecords(pending map[int64][]int64) *memRecords {
	return &memRecords{pending: pending, synced: make(map[int64]time.Time)}
}

func (m *memRecords) FetchPending(ctx context.Context, jobID int64) ([]int64, error) {
	return append([]int64(nil), m.pending[jobID]...), nil
}

func (m *memRecords) MarkSynced(ctx context.Context, jobID int64, syncedAt time.Time) error {
	delete(m.pending, jobID)
	m.synced[jobID] = syncedAt
	return nil
}

type dispatchCall struct {
	customerIDs []int64
	export      domain.JobExport
}

// fakeDispatcher records calls and returns a fixed outcome
type fakeDispatcher struct {
	code  domain.ResultCode
	err   error
	panic bool
	calls []dispatchCall
}

func (f *fakeDispatcher) Send(ctx context.Context, customerIDs []int64, export domain.JobExport) (domain.ResultCode, error) {
	f.calls = append(f.calls, dispatchCall{customerIDs: customerIDs, export: export})
	if f.panic {
		panic("provider client exploded")
	}
	return f.code, f.err
}

// memJournal keeps journal lines in memory
type memJournal struct {
	lines []string
}

func (m *memJournal) Record(ctx context.Context, message string, jobID int64, storeID *int64) {
	m.lines = append(m.lines, message)
}

var errBoom = errors.New("boom")
