package handler

import (
	"io"

	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"
	"marketplace-escrow/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderGatewaySignature carries the processor's HMAC over the raw body.
const HeaderGatewaySignature = "X-Gateway-Signature"

// WebhookHandler handles inbound gateway notifications.
type WebhookHandler struct {
	processor ports.WebhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor ports.WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Receive handles POST /api/v1/webhooks/gateway. The body is consumed raw:
// the signature covers the exact bytes the gateway sent.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader(HeaderGatewaySignature)
	if err := h.processor.Process(c.Request.Context(), payload, signature); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"received": true})
}
