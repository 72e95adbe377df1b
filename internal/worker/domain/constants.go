package domain

// Job status constants
const (
	JobStatusQueued   = "queued"
	JobStatusStarted  = "started"
	JobStatusFinished = "finished"
)

// Sync mode constants
const (
	SyncModeAuto   = "auto"
	SyncModeManual = "manual"
)

// EntityCustomer is the only entity type the sync table currently tracks
const EntityCustomer = "customer"

// CronLockID is the name of the lock that serializes cron runs
const CronLockID = "mailupcronrun"
