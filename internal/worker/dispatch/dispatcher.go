// Package dispatch hands a job's customer batch to the component that talks to the mailing-list provider.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
)

// Result codes produced by this package. Provider-side codes are passed through unchanged.
const (
	ResultPublishFailed domain.ResultCode = 2
)

// Dispatcher sends the customer ids of one job to the provider.
// A non-zero result code is a dispatch failure; a returned error is unexpected and aborts the run.
type Dispatcher interface {
	Send(ctx context.Context, customerIDs []int64, export domain.JobExport) (domain.ResultCode, error)
}

// DryRun logs the batch instead of sending it and reports a fixed result code
type DryRun struct {
	logger *slog.Logger
	code   domain.ResultCode
}

// NewDryRun creates a dispatcher that never leaves the process
func NewDryRun(logger *slog.Logger, code domain.ResultCode) *DryRun {
	return &DryRun{logger: logger, code: code}
}

func (d *DryRun) Send(ctx context.Context, customerIDs []int64, export domain.JobExport) (domain.ResultCode, error) {
	d.logger.Info("Dry run dispatch",
		slog.Int64("job_id", export.JobID),
		slog.Int("customer_count", len(customerIDs)),
		slog.Int64("list_id", export.Target.ListID),
		slog.String("list_guid", export.Target.ListGUID),
		slog.Int64("group_id", export.Target.GroupID),
		slog.Bool("send_optin", export.SendOptin),
		slog.Int("result_code", int(d.code)),
	)
	return d.code, nil
}
