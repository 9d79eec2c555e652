package inbound

import "github.com/gin-gonic/gin"

// PaymentHttpPort defines HTTP handler interface for user payment operations.
type PaymentHttpPort interface {
	// CreateIntent handles POST /payments/intents
	// Starts a payment for a plan and returns the checkout artifact.
	CreateIntent(c *gin.Context)

	// GetIntent handles GET /payments/intents/:id
	// Returns an intent owned by the current user.
	GetIntent(c *gin.Context)
}

// WebhookHttpPort defines HTTP handler interface for provider webhooks.
type WebhookHttpPort interface {
	// HandleWebhook handles POST /webhooks/:provider
	// Verifies and applies one provider notification.
	HandleWebhook(c *gin.Context)
}

// PaymentAdminHttpPort defines HTTP handler interface for operator tooling.
type PaymentAdminHttpPort interface {
	// GetIntent handles GET /admin/intents/:id
	GetIntent(c *gin.Context)

	// Reconcile handles POST /admin/intents/:id/reconcile
	// Forces a provider status check through the recovery path.
	Reconcile(c *gin.Context)
}

// SubscriptionHttpPort defines HTTP handler interface for entitlement reads.
type SubscriptionHttpPort interface {
	// GetEntitlement handles GET /subscription
	// Returns the current user's entitlement.
	GetEntitlement(c *gin.Context)
}
