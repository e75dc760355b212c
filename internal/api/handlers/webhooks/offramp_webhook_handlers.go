// Package webhooks contains the inbound webhook endpoints, one per
// payment rail. Each handler verifies authenticity, decodes the
// provider's payload into a typed event and hands it to the settlement
// pipeline.
package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/services/settlement"
	"github.com/clearrail/clearrail/pkg/metrics"
	"github.com/clearrail/clearrail/pkg/security"
)

// SignatureHeaderOfframp carries the off-ramp provider's HMAC digest
const SignatureHeaderOfframp = "X-Offramp-Signature"

// OfframpEventV1 is the off-ramp provider's webhook envelope, decoded
// explicitly rather than sniffed from loose JSON.
type OfframpEventV1 struct {
	Event string           `json:"event"`
	Data  OfframpOrderData `json:"data"`
}

// OfframpOrderData is the order payload inside an off-ramp event
type OfframpOrderData struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TransactionHash string          `json:"transactionHash"`
	WalletAddress   string          `json:"walletAddress"`
}

// OfframpWebhookHandler receives order status webhooks from the fiat
// off-ramp provider.
// POST /api/v1/webhooks/offramp
type OfframpWebhookHandler struct {
	pipeline *settlement.Pipeline
	verifier *security.SignatureVerifier
	logger   *zap.Logger
}

// NewOfframpWebhookHandler creates the off-ramp webhook handler
func NewOfframpWebhookHandler(pipeline *settlement.Pipeline, verifier *security.SignatureVerifier, logger *zap.Logger) *OfframpWebhookHandler {
	return &OfframpWebhookHandler{pipeline: pipeline, verifier: verifier, logger: logger}
}

// HandleOrderEvent processes one off-ramp order delivery
func (h *OfframpWebhookHandler) HandleOrderEvent(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read body"})
		return
	}

	if err := h.verifier.Verify(settlement.ProviderOfframp, rawBody, c.GetHeader(SignatureHeaderOfframp)); err != nil {
		h.logger.Warn("Invalid off-ramp webhook signature", zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOfframp, "rejected").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
		return
	}

	var payload OfframpEventV1
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Error("Failed to parse off-ramp payload", zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOfframp, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	if payload.Data.ID == "" || payload.Data.Status == "" {
		h.logger.Error("Off-ramp payload missing required fields",
			zap.String("event", payload.Event))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOfframp, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing order id or status"})
		return
	}

	h.logger.Info("Processing off-ramp webhook",
		zap.String("event", payload.Event),
		zap.String("order_id", payload.Data.ID),
		zap.String("status", payload.Data.Status))

	event := &entities.PaymentEvent{
		Source:          entities.EventSourceOfframp,
		ExternalOrderID: payload.Data.ID,
		TxHash:          payload.Data.TransactionHash,
		ToAddress:       payload.Data.WalletAddress,
		Asset:           payload.Data.Currency,
		Amount:          payload.Data.Amount,
		RawStatus:       payload.Data.Status,
		ReceivedAt:      time.Now().UTC(),
	}

	outcome, err := h.pipeline.Process(c.Request.Context(), event, rawBody)
	if err != nil {
		h.logger.Error("Off-ramp webhook processing failed",
			zap.String("order_id", payload.Data.ID),
			zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOfframp, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "processing failed"})
		return
	}

	metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOfframp, string(outcome.Outcome)).Inc()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  string(outcome.Status),
		"orderId": payload.Data.ID,
	})
}
