package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/mailup-sync/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// CronHandler handles cron control requests
type CronHandler struct {
	logger     *slog.Logger
	publisher  TriggerPublisher
	routingKey string
}

// NewCronHandler creates a new CronHandler instance
func NewCronHandler(deps *Dependencies) *CronHandler {
	return &CronHandler{
		logger:     deps.Logger,
		publisher:  deps.Trigger,
		routingKey: deps.TriggerRoutingKey,
	}
}

// TriggerRun handles POST /api/v1/cron/trigger
// Asks the cron service to start a pass now. The pass still honours the cron lock.
func (h *CronHandler) TriggerRun(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Cron trigger is not configured"})
		return
	}

	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode trigger"})
		return
	}

	if err := h.publisher.Publish(c.Request.Context(), h.routingKey, body, "application/json"); err != nil {
		h.logger.Error("Failed to publish cron trigger", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to publish cron trigger"})
		return
	}

	h.logger.Info("Cron run requested",
		slog.String("reason", req.Reason),
		slog.String("requested_by", req.RequestedBy),
	)

	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}
