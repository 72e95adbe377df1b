package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
)

// FetchPending returns the ids of customers flagged for sync under a job.
// Customers deleted from customer_entity are dropped by the join.
func (s *Storage) FetchPending(ctx context.Context, jobID int64) ([]int64, error) {
	query := s.db.Rebind(`
		SELECT ms.customer_id
		FROM mailup_sync ms
		JOIN customer_entity ce ON ms.customer_id = ce.entity_id
		WHERE ms.needs_sync = ?
		  AND ms.entity = ?
		  AND ms.job_id = ?
		ORDER BY ms.customer_id ASC
	`)

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, true, domain.EntityCustomer, jobID); err != nil {
		return nil, fmt.Errorf("failed to fetch pending records for job %d: %w", jobID, err)
	}

	return ids, nil
}

// PendingRecords returns the full pending rows of a job, email included
func (s *Storage) PendingRecords(ctx context.Context, jobID int64) ([]domain.SyncRecord, error) {
	query := s.db.Rebind(`
		SELECT ms.customer_id, ms.entity, ms.job_id, ms.needs_sync, ms.last_sync, ce.email
		FROM mailup_sync ms
		JOIN customer_entity ce ON ms.customer_id = ce.entity_id
		WHERE ms.needs_sync = ?
		  AND ms.entity = ?
		  AND ms.job_id = ?
		ORDER BY ms.customer_id ASC
	`)

	var records []domain.SyncRecord
	if err := s.db.SelectContext(ctx, &records, query, true, domain.EntityCustomer, jobID); err != nil {
		return nil, fmt.Errorf("failed to fetch pending records for job %d: %w", jobID, err)
	}

	return records, nil
}

// MarkSynced clears the sync flag of every customer record of a job in one statement
func (s *Storage) MarkSynced(ctx context.Context, jobID int64, syncedAt time.Time) error {
	query := s.db.Rebind(`
		UPDATE mailup_sync
		SET needs_sync = ?, last_sync = ?
		WHERE job_id = ? AND entity = ?
	`)

	result, err := s.db.ExecContext(ctx, query, false, syncedAt.UTC(), jobID, domain.EntityCustomer)
	if err != nil {
		return fmt.Errorf("failed to mark records synced for job %d: %w", jobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Debug("Sync records cleared",
		slog.Int64("job_id", jobID),
		slog.Int64("rows", rowsAffected),
	)

	return nil
}
