package paymenthttp

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/inbound"
	apperrors "github.com/payrecon/server/internal/utils/errors"
	"github.com/payrecon/server/internal/utils/middleware"
)

// EntitlementReader reads the entitlement granted by completed payments.
type EntitlementReader interface {
	GetEntitlement(ctx context.Context, userID int64) (*model.Entitlement, error)
}

// SubscriptionHandler lets a user confirm that a payment was applied.
type SubscriptionHandler struct {
	reader EntitlementReader
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(reader EntitlementReader) *SubscriptionHandler {
	return &SubscriptionHandler{reader: reader}
}

// RegisterRoutes registers subscription routes. The group must be authenticated.
func (h *SubscriptionHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/subscription", h.GetEntitlement)
}

// GetEntitlement handles GET /subscription.
func (h *SubscriptionHandler) GetEntitlement(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		appErr := apperrors.Unauthorized("Authentication required")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	ent, err := h.reader.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ent.ToResponse())
}

// Compile-time check
var _ inbound.SubscriptionHttpPort = (*SubscriptionHandler)(nil)
