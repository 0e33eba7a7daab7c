package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/metrics"
	"github.com/routeflow/routeflow-api/internal/webhook"
)

// Webhook authentication headers.
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
)

// WebhookHandler receives signed provider events, verifies them and hands
// them to the dispatcher. Verification failures produce no state change.
type WebhookHandler struct {
	verifier   *webhook.Verifier
	dispatcher *webhook.Dispatcher
	metrics    *metrics.Registry
}

func NewWebhookHandler(verifier *webhook.Verifier, dispatcher *webhook.Dispatcher, m *metrics.Registry) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, dispatcher: dispatcher, metrics: m}
}

// HandleProviderWebhook handles POST /api/v1/webhooks/provider.
func (h *WebhookHandler) HandleProviderWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.metrics.WebhooksReceived.WithLabelValues("read_error").Inc()
		sendError(c, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	signature := c.GetHeader(HeaderWebhookSignature)
	timestamp := c.GetHeader(HeaderWebhookTimestamp)

	if err := h.verifier.Verify(body, signature, timestamp); err != nil {
		outcome := "invalid_signature"
		if errors.Is(err, webhook.ErrStaleTimestamp) {
			outcome = "stale_timestamp"
		}
		h.metrics.WebhooksReceived.WithLabelValues(outcome).Inc()
		sendError(c, http.StatusUnauthorized, "webhook verification failed", err)
		return
	}

	// The event id only matters for replay suppression, so a body without
	// one passes through; Dispatch revalidates the full shape.
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(body, &envelope)

	if err := h.verifier.MarkSeen(envelope.Data.ID); err != nil {
		h.metrics.WebhooksReceived.WithLabelValues("replayed").Inc()
		logger.Log.Warn("rejecting replayed webhook event",
			zap.String("event_id", envelope.Data.ID))
		sendError(c, http.StatusConflict, "event already processed", err)
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), body); err != nil {
		// Drop the replay claim so the provider's redelivery gets another
		// attempt instead of a duplicate rejection.
		h.verifier.Forget(envelope.Data.ID)
		h.metrics.WebhooksReceived.WithLabelValues("handler_error").Inc()
		sendError(c, http.StatusBadRequest, "failed to process webhook event", err)
		return
	}

	h.metrics.WebhooksReceived.WithLabelValues("verified").Inc()
	sendSuccess(c, http.StatusOK, SuccessResponse{Message: "event processed"})
}
