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

// SignatureHeaderOnchain carries the transfer watcher's HMAC digest
const SignatureHeaderOnchain = "X-Onchain-Signature"

// OnchainActivityEventV1 is the transfer watcher's webhook envelope.
// One delivery may report several transfers to watched addresses.
type OnchainActivityEventV1 struct {
	Event    string             `json:"event"`
	Network  string             `json:"network"`
	Activity []TransferActivity `json:"activity"`
}

// TransferActivity is one observed transfer
type TransferActivity struct {
	TxHash      string          `json:"txHash"`
	FromAddress string          `json:"fromAddress"`
	ToAddress   string          `json:"toAddress"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
}

// OnchainWebhookHandler receives address-activity webhooks from the
// on-chain transfer watcher. These events carry no business identifier;
// matching is the wallet/asset/amount heuristic.
// POST /api/v1/webhooks/onchain
type OnchainWebhookHandler struct {
	pipeline *settlement.Pipeline
	verifier *security.SignatureVerifier
	logger   *zap.Logger
}

// NewOnchainWebhookHandler creates the on-chain webhook handler
func NewOnchainWebhookHandler(pipeline *settlement.Pipeline, verifier *security.SignatureVerifier, logger *zap.Logger) *OnchainWebhookHandler {
	return &OnchainWebhookHandler{pipeline: pipeline, verifier: verifier, logger: logger}
}

// HandleActivityEvent processes one address-activity delivery. Each
// transfer in the batch is matched and applied independently; a miss on
// one does not fail the others or the acknowledgment.
func (h *OnchainWebhookHandler) HandleActivityEvent(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read body"})
		return
	}

	if err := h.verifier.Verify(settlement.ProviderOnchain, rawBody, c.GetHeader(SignatureHeaderOnchain)); err != nil {
		h.logger.Warn("Invalid on-chain webhook signature", zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOnchain, "rejected").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
		return
	}

	var payload OnchainActivityEventV1
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Error("Failed to parse on-chain payload", zap.Error(err))
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOnchain, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}
	if len(payload.Activity) == 0 {
		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOnchain, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "empty activity"})
		return
	}

	h.logger.Info("Processing on-chain activity webhook",
		zap.String("event", payload.Event),
		zap.String("network", payload.Network),
		zap.Int("transfers", len(payload.Activity)))

	receivedAt := time.Now().UTC()
	results := make([]gin.H, 0, len(payload.Activity))

	for _, transfer := range payload.Activity {
		if transfer.TxHash == "" || transfer.ToAddress == "" {
			h.logger.Warn("Skipping transfer with missing fields",
				zap.String("tx_hash", transfer.TxHash))
			results = append(results, gin.H{"txHash": transfer.TxHash, "outcome": "malformed"})
			continue
		}

		rawStatus := transfer.Status
		if rawStatus == "" {
			// The watcher only reports mined transfers
			rawStatus = "confirmed"
		}

		event := &entities.PaymentEvent{
			Source:      entities.EventSourceOnchain,
			TxHash:      transfer.TxHash,
			FromAddress: transfer.FromAddress,
			ToAddress:   transfer.ToAddress,
			Asset:       transfer.Asset,
			Amount:      transfer.Amount,
			RawStatus:   rawStatus,
			ReceivedAt:  receivedAt,
		}

		outcome, err := h.pipeline.Process(c.Request.Context(), event, rawBody)
		if err != nil {
			h.logger.Error("On-chain transfer processing failed",
				zap.String("tx_hash", transfer.TxHash),
				zap.Error(err))
			metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOnchain, "error").Inc()
			results = append(results, gin.H{"txHash": transfer.TxHash, "outcome": "error"})
			continue
		}

		metrics.WebhooksReceivedTotal.WithLabelValues(settlement.ProviderOnchain, string(outcome.Outcome)).Inc()
		results = append(results, gin.H{
			"txHash":  transfer.TxHash,
			"outcome": string(outcome.Outcome),
			"status":  string(outcome.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}
