package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/splithaus/splithaus/internal/services"
	apperrors "github.com/splithaus/splithaus/pkg/errors"
	"github.com/splithaus/splithaus/pkg/response"
)

// SignatureHeader carries the gateway's HMAC over the raw request body.
const SignatureHeader = "X-Gateway-HMAC"

// maxWebhookBody bounds webhook payload reads. Gateway transaction events
// are small; anything larger is garbage.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	reconcile *services.ReconcileService
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(reconcile *services.ReconcileService) *WebhookHandler {
	return &WebhookHandler{reconcile: reconcile}
}

// HandleGateway verifies and applies one gateway transaction event. The
// signature is read from the X-Gateway-HMAC header, falling back to the hmac
// query parameter for gateways that only support query-string signatures.
func (h *WebhookHandler) HandleGateway(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("unreadable request body"))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		signature = c.Query("hmac")
	}

	result, err := h.reconcile.HandleEvent(c.Request.Context(), raw, signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
