package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Journal persists operator-facing sync log lines to mailup_sync_log and mirrors them to slog.
// A failed insert is logged and otherwise ignored: the journal never aborts a run.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewJournal creates a journal writing to the given database. A nil db only logs.
func NewJournal(db *sqlx.DB, logger *slog.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Record writes one journal line. jobID 0 and a nil storeID mean "not job specific".
func (j *Journal) Record(ctx context.Context, message string, jobID int64, storeID *int64) {
	attrs := []any{slog.String("source", "journal")}
	if jobID != 0 {
		attrs = append(attrs, slog.Int64("job_id", jobID))
	}
	if storeID != nil {
		attrs = append(attrs, slog.Int64("store_id", *storeID))
	}
	j.logger.Info(message, attrs...)

	if j.db == nil {
		return
	}

	var job *int64
	if jobID != 0 {
		job = &jobID
	}

	query := j.db.Rebind(`
		INSERT INTO mailup_sync_log (job_id, store_id, message, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := j.db.ExecContext(ctx, query, job, storeID, message, j.now().UTC()); err != nil {
		j.logger.Warn("Failed to write sync journal",
			slog.String("message", message),
			slog.String("error", err.Error()),
		)
	}
}
