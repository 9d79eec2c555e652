package paymenthttp

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/inbound"
)

// IntentReader reads any intent regardless of owner.
type IntentReader interface {
	GetIntent(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error)
}

// Reconciler forces a provider status check for one intent.
type Reconciler interface {
	Reconcile(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error)
}

// AdminHandler handles operator payment HTTP requests.
type AdminHandler struct {
	reader     IntentReader
	reconciler Reconciler
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(reader IntentReader, reconciler Reconciler) *AdminHandler {
	return &AdminHandler{reader: reader, reconciler: reconciler}
}

// RegisterRoutes registers admin routes. The group must require the admin role.
func (h *AdminHandler) RegisterRoutes(r gin.IRouter) {
	intents := r.Group("/intents")
	{
		intents.GET("/:id", h.GetIntent)
		intents.POST("/:id/reconcile", h.Reconcile)
	}
}

// GetIntent handles GET /admin/intents/:id and includes metadata.
func (h *AdminHandler) GetIntent(c *gin.Context) {
	id, ok := parseIntentID(c)
	if !ok {
		return
	}

	intent, err := h.reader.GetIntent(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, intent)
}

// Reconcile handles POST /admin/intents/:id/reconcile.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	id, ok := parseIntentID(c)
	if !ok {
		return
	}

	intent, err := h.reconciler.Reconcile(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, intent)
}

// Compile-time check
var _ inbound.PaymentAdminHttpPort = (*AdminHandler)(nil)
