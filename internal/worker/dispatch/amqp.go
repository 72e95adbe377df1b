package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailup-sync/internal/worker/domain"
)

// Publisher is the part of the RabbitMQ client the dispatcher needs
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// ExportMessage is the JSON body published for one job batch
type ExportMessage struct {
	JobID       int64     `json:"job_id"`
	StoreID     *int64    `json:"store_id"`
	ListID      int64     `json:"list_id"`
	ListGUID    string    `json:"list_guid"`
	GroupID     int64     `json:"group_id"`
	NewGroup    bool      `json:"new_group"`
	SendOptin   bool      `json:"send_optin"`
	CustomerIDs []int64   `json:"customer_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// AMQPDispatcher publishes export batches for the provider uploader to consume
type AMQPDispatcher struct {
	publisher  Publisher
	routingKey string
	logger     *slog.Logger
	now        func() time.Time
}

// NewAMQPDispatcher creates a dispatcher publishing with the given routing key
func NewAMQPDispatcher(publisher Publisher, routingKey string, logger *slog.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{
		publisher:  publisher,
		routingKey: routingKey,
		logger:     logger,
		now:        time.Now,
	}
}

func (d *AMQPDispatcher) Send(ctx context.Context, customerIDs []int64, export domain.JobExport) (domain.ResultCode, error) {
	msg := ExportMessage{
		JobID:       export.JobID,
		StoreID:     export.StoreID,
		ListID:      export.Target.ListID,
		ListGUID:    export.Target.ListGUID,
		GroupID:     export.Target.GroupID,
		NewGroup:    export.NewGroup,
		SendOptin:   export.SendOptin,
		CustomerIDs: customerIDs,
		CreatedAt:   d.now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return ResultPublishFailed, fmt.Errorf("failed to encode export message: %w", err)
	}

	if err := d.publisher.PublishWithRetry(ctx, d.routingKey, body, "application/json"); err != nil {
		d.logger.Error("Failed to publish export batch",
			slog.Int64("job_id", export.JobID),
			slog.Int("customer_count", len(customerIDs)),
			slog.String("error", err.Error()),
		)
		return ResultPublishFailed, nil
	}

	d.logger.Info("Export batch published",
		slog.Int64("job_id", export.JobID),
		slog.Int("customer_count", len(customerIDs)),
		slog.String("routing_key", d.routingKey),
	)

	return domain.ResultOK, nil
}
