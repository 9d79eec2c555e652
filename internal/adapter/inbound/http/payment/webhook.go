package paymenthttp

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/inbound"
	apperrors "github.com/payrecon/server/internal/utils/errors"
)

// maxWebhookBytes bounds a webhook body.
const maxWebhookBytes = 1 << 20

// WebhookIngester applies verified provider notifications.
type WebhookIngester interface {
	Ingest(ctx context.Context, provider model.Provider, payload []byte, signature string) (*model.IngestResult, error)
}

// WebhookHandler handles payment webhook HTTP requests.
type WebhookHandler struct {
	ingester WebhookIngester
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(ingester WebhookIngester) *WebhookHandler {
	return &WebhookHandler{ingester: ingester}
}

// RegisterRoutes registers webhook routes.
func (h *WebhookHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/:provider", h.HandleWebhook)
}

// HandleWebhook handles POST /webhooks/:provider.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	provider := model.Provider(c.Param("provider"))
	if !provider.IsValid() {
		appErr := apperrors.NotFound("provider")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	// Signatures are computed over the exact bytes, so read before any parsing.
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		appErr := apperrors.BadRequest("Failed to read request body")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), provider, payload, signatureHeader(c, provider))
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == model.IngestOutcomeUnknownIntent {
		status = http.StatusAccepted
	}
	if result.Ack != "" {
		c.String(status, result.Ack)
		return
	}
	c.JSON(status, model.WebhookResponse{Received: true, Outcome: result.Outcome})
}

// signatureHeader returns the signature a provider sends with its webhooks.
// Alipay signs inside the form body.
func signatureHeader(c *gin.Context, provider model.Provider) string {
	switch provider {
	case model.ProviderStripe:
		return c.GetHeader("Stripe-Signature")
	case model.ProviderAlipay:
		return ""
	default:
		return c.GetHeader("X-Signature")
	}
}

// Compile-time check
var _ inbound.WebhookHttpPort = (*WebhookHandler)(nil)
