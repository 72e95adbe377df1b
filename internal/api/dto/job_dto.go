package dto

type ListJobsRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=queued started finished"`
	Mode     string `form:"mode" binding:"omitempty,oneof=auto manual"`
	StoreID  *int64 `form:"store_id"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	ID         int64   `json:"id"`
	Status     string  `json:"status"`
	StoreID    *int64  `json:"store_id"`
	Mode       string  `json:"mode"`
	ListID     int64   `json:"list_id"`
	GroupID    int64   `json:"group_id"`
	SendOptin  bool    `json:"send_optin"`
	StartedAt  *string `json:"start_datetime"`
	FinishedAt *string `json:"finish_datetime"`
}

type PendingRecordDTO struct {
	CustomerID int64   `json:"customer_id"`
	Email      string  `json:"email"`
	LastSync   *string `json:"last_sync"`
}

type PendingRecordsResponse struct {
	JobID   int64              `json:"job_id"`
	Count   int                `json:"count"`
	Records []PendingRecordDTO `json:"records"`
}

type TriggerRunRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}
