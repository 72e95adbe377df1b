package domain

import "time"

// Job is a configured synchronization task targeting one list/group for one store.
// Values are loaded once per run and never mutated by the runner.
type Job struct {
	ID         int64      `db:"id"`
	Status     string     `db:"status"`
	StoreID    *int64     `db:"store_id"` // nil means global
	Mode       string     `db:"mode"`
	ListID     int64      `db:"list_id"`
	GroupID    int64      `db:"group_id"`
	SendOptin  bool       `db:"send_optin"`
	StartedAt  *time.Time `db:"start_datetime"`
	FinishedAt *time.Time `db:"finish_datetime"`
}

// IsAutoSync reports whether the job was created by automatic change tracking
func (j Job) IsAutoSync() bool {
	return j.Mode == SyncModeAuto
}

// SyncRecord is a per-customer flag saying the customer must be pushed for a job
type SyncRecord struct {
	CustomerID int64      `db:"customer_id"`
	Entity     string     `db:"entity"`
	JobID      int64      `db:"job_id"`
	NeedsSync  bool       `db:"needs_sync"`
	LastSync   *time.Time `db:"last_sync"`
	Email      string     `db:"email"`
}

// List is one mailing list known to the external provider
type List struct {
	ID     int64   `json:"id" yaml:"id"`
	GUID   string  `json:"guid" yaml:"guid"`
	Name   string  `json:"name" yaml:"name"`
	Groups []Group `json:"groups" yaml:"groups"`
}

// Group is a group inside a mailing list
type Group struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ListResolution is a snapshot of the lists visible to one store, keyed by list id
type ListResolution map[int64]List

// ResolvedTarget is the external list/group a job exports to
type ResolvedTarget struct {
	ListID   int64
	ListGUID string
	GroupID  int64
	Groups   []Group
}

// JobExport is the context handed to the dispatcher for one job
type JobExport struct {
	JobID     int64
	StoreID   *int64
	Target    ResolvedTarget
	SendOptin bool
	NewGroup  bool
}

// ResultCode is the dispatcher outcome. Zero is success, anything else is failure.
type ResultCode int

// ResultOK is the only successful result code
const ResultOK ResultCode = 0

// OK reports whether the code signals a fully successful dispatch
func (c ResultCode) OK() bool {
	return c == ResultOK
}
