package paymenthttp

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/inbound"
	apperrors "github.com/payrecon/server/internal/utils/errors"
	"github.com/payrecon/server/internal/utils/middleware"
)

// IntentService starts payments and reads them back for their owner.
type IntentService interface {
	CreateIntent(ctx context.Context, userID int64, planID string, provider model.Provider) (*model.CreateIntentResult, error)
	GetIntentForUser(ctx context.Context, userID int64, id uuid.UUID) (*model.PaymentIntent, error)
}

// IntentHandler handles user-facing payment HTTP requests.
type IntentHandler struct {
	service IntentService
}

// NewIntentHandler creates a new intent handler.
func NewIntentHandler(service IntentService) *IntentHandler {
	return &IntentHandler{service: service}
}

// RegisterRoutes registers intent routes. The group must be authenticated.
func (h *IntentHandler) RegisterRoutes(r gin.IRouter) {
	payments := r.Group("/payments")
	{
		payments.POST("/intents", h.CreateIntent)
		payments.GET("/intents/:id", h.GetIntent)
	}
}

// CreateIntent handles POST /payments/intents.
func (h *IntentHandler) CreateIntent(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		appErr := apperrors.Unauthorized("Authentication required")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	var req model.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest("Invalid request body").WithDetails(map[string]any{"reason": err.Error()})
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	if !req.Provider.IsValid() {
		appErr := apperrors.BadRequest("Unsupported provider")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	result, err := h.service.CreateIntent(c.Request.Context(), userID, req.PlanID, req.Provider)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetIntent handles GET /payments/intents/:id.
func (h *IntentHandler) GetIntent(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		appErr := apperrors.Unauthorized("Authentication required")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	id, ok := parseIntentID(c)
	if !ok {
		return
	}

	intent, err := h.service.GetIntentForUser(c.Request.Context(), userID, id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, intent.ToResponse())
}

// Compile-time check
var _ inbound.PaymentHttpPort = (*IntentHandler)(nil)
