// Package testutil contains shared testing utilities
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Schema mirrors the tables the cron runner touches, in SQLite dialect
const Schema = `
CREATE TABLE mailup_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	status TEXT NOT NULL DEFAULT 'queued',
	store_id INTEGER NULL,
	mode TEXT NOT NULL DEFAULT 'manual',
	list_id INTEGER NOT NULL DEFAULT 0,
	group_id INTEGER NOT NULL DEFAULT 0,
	send_optin BOOLEAN NOT NULL DEFAULT 0,
	start_datetime TIMESTAMP NULL,
	finish_datetime TIMESTAMP NULL
);

CREATE TABLE customer_entity (
	entity_id INTEGER PRIMARY KEY,
	email TEXT NOT NULL
);

CREATE TABLE mailup_sync (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER NOT NULL,
	entity TEXT NOT NULL DEFAULT 'customer',
	job_id INTEGER NOT NULL,
	store_id INTEGER NULL,
	needs_sync BOOLEAN NOT NULL DEFAULT 1,
	last_sync TIMESTAMP NULL
);

CREATE TABLE mailup_sync_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NULL,
	store_id INTEGER NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE cron_locks (
	name TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	locked_at TIMESTAMP NOT NULL
);
`

// NewSQLiteDB opens a private in-memory database with Schema applied
func NewSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// InsertJob adds a job row and returns its id
func InsertJob(t *testing.T, db *sqlx.DB, status, mode string, storeID *int64, listID, groupID int64) int64 {
	t.Helper()

	result, err := db.ExecContext(context.Background(),
		`INSERT INTO mailup_jobs (status, store_id, mode, list_id, group_id) VALUES (?, ?, ?, ?, ?)`,
		status, storeID, mode, listID, groupID,
	)
	if err != nil {
		t.Fatalf("failed to insert job: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get job id: %v", err)
	}
	return id
}

// InsertCustomer adds a customer entity row
func InsertCustomer(t *testing.T, db *sqlx.DB, id int64, email string) {
	t.Helper()

	if _, err := db.Exec(`INSERT INTO customer_entity (entity_id, email) VALUES (?, ?)`, id, email); err != nil {
		t.Fatalf("failed to insert customer: %v", err)
	}
}

// InsertSyncRecord flags a customer for sync under a job
func InsertSyncRecord(t *testing.T, db *sqlx.DB, customerID, jobID int64, needsSync bool) {
	t.Helper()

	if _, err := db.Exec(
		`INSERT INTO mailup_sync (customer_id, entity, job_id, needs_sync) VALUES (?, 'customer', ?, ?)`,
		customerID, jobID, needsSync,
	); err != nil {
		t.Fatalf("failed to insert sync record: %v", err)
	}
}

// SyncState is the observable state of one sync record
type SyncState struct {
	NeedsSync bool       `db:"needs_sync"`
	LastSync  *time.Time `db:"last_sync"`
}

// GetSyncState reads the flag and timestamp of one customer's record under a job
func GetSyncState(t *testing.T, db *sqlx.DB, customerID, jobID int64) SyncState {
	t.Helper()

	var state SyncState
	if err := db.Get(&state, `SELECT needs_sync, last_sync FROM mailup_sync WHERE customer_id = ? AND job_id = ?`, customerID, jobID); err != nil {
		t.Fatalf("failed to read sync record: %v", err)
	}
	return state
}
