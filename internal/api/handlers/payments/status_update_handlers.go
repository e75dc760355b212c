// Package payments contains the direct status-update endpoint the UI
// calls after an on-chain wallet interaction completes.
package payments

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/services/settlement"
	"github.com/clearrail/clearrail/pkg/metrics"
)

// StatusUpdateRequest is the UI's payment confirmation payload
type StatusUpdateRequest struct {
	RecordID        string `json:"recordId" validate:"required,uuid4"`
	Status          string `json:"status" validate:"required,oneof=completed paid processing failed"`
	TransactionHash string `json:"transactionHash" validate:"omitempty,max=128"`
	PayerAddress    string `json:"payerAddress" validate:"omitempty,max=128"`
	Chain           string `json:"chain" validate:"omitempty,max=32"`
}

// StatusUpdateHandler runs trusted UI confirmations through the same
// settlement pipeline as the webhook rails. The route sits behind JWT
// auth; there is no HMAC here.
// POST /api/v1/payments/status
type StatusUpdateHandler struct {
	pipeline *settlement.Pipeline
	validate *validator.Validate
	logger   *zap.Logger
}

// NewStatusUpdateHandler creates the direct status-update handler
func NewStatusUpdateHandler(pipeline *settlement.Pipeline, logger *zap.Logger) *StatusUpdateHandler {
	return &StatusUpdateHandler{
		pipeline: pipeline,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleStatusUpdate processes one confirmation from the UI
func (h *StatusUpdateHandler) HandleStatusUpdate(c *gin.Context) {
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.logger.Warn("Status update failed validation", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	recordID, err := uuid.Parse(req.RecordID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid record id"})
		return
	}

	h.logger.Info("Processing direct status update",
		zap.String("record_id", req.RecordID),
		zap.String("status", req.Status),
		zap.String("chain", req.Chain))

	event := &entities.PaymentEvent{
		Source:      entities.EventSourceDirect,
		RecordID:    &recordID,
		TxHash:      req.TransactionHash,
		FromAddress: req.PayerAddress,
		RawStatus:   req.Status,
		ReceivedAt:  time.Now().UTC(),
	}

	outcome, err := h.pipeline.Process(c.Request.Context(), event, nil)
	if err != nil {
		h.logger.Error("Direct status update processing failed",
			zap.String("record_id", req.RecordID),
			zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderDirect, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "processing failed"})
		return
	}

	metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderDirect, string(outcome.Outcome)).Inc()

	if outcome.Outcome == entities.WebhookOutcomeNoMatch {
		// The UI named a record that does not exist; unlike providers it
		// can act on a 404.
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "record not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  string(outcome.Status),
		"orderId": req.RecordID,
	})
}
