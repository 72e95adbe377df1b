package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLManager keeps locks as rows of the cron_locks table
type SQLManager struct {
	db    *sqlx.DB
	owner string
	now   func() time.Time
}

// NewSQLManager creates a table-backed lock manager with a fresh owner token
func NewSQLManager(db *sqlx.DB) *SQLManager {
	return &SQLManager{
		db:    db,
		owner: uuid.NewString(),
		now:   time.Now,
	}
}

// Owner returns the token identifying this manager's locks
func (m *SQLManager) Owner() string {
	return m.owner
}

func (m *SQLManager) TryAcquire(ctx context.Context, id string) (Result, error) {
	query := m.db.Rebind(`
		INSERT INTO cron_locks (name, owner, locked_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`)

	result, err := m.db.ExecContext(ctx, query, id, m.owner, m.now().UTC())
	if err != nil {
		return AlreadyLocked, fmt.Errorf("failed to insert lock row: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return AlreadyLocked, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return AlreadyLocked, nil
	}
	return Acquired, nil
}

func (m *SQLManager) IsStale(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	query := m.db.Rebind(`SELECT locked_at FROM cron_locks WHERE name = ?`)

	var lockedAt time.Time
	if err := m.db.GetContext(ctx, &lockedAt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read lock row: %w", err)
	}

	return m.now().Sub(lockedAt) >= maxAge, nil
}

func (m *SQLManager) ForceRelease(ctx context.Context, id string) error {
	query := m.db.Rebind(`DELETE FROM cron_locks WHERE name = ?`)

	if _, err := m.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete lock row: %w", err)
	}
	return nil
}

func (m *SQLManager) Release(ctx context.Context, id string) error {
	query := m.db.Rebind(`DELETE FROM cron_locks WHERE name = ? AND owner = ?`)

	if _, err := m.db.ExecContext(ctx, query, id, m.owner); err != nil {
		return fmt.Errorf("failed to delete lock row: %w", err)
	}
	return nil
}
