package paymenthttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/payrecon/server/internal/domain/payment"
	"github.com/payrecon/server/internal/domain/subscription"
	apperrors "github.com/payrecon/server/internal/utils/errors"
)

// toAppError maps payment domain errors to HTTP errors. Webhook senders retry
// on 5xx and give up on 4xx, so only transient failures may map to 5xx.
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, payment.ErrSignatureInvalid):
		return apperrors.NewAppError("INVALID_SIGNATURE", "Webhook signature verification failed", http.StatusUnauthorized, err)

	case errors.Is(err, payment.ErrMalformedEvent):
		return apperrors.NewAppError("MALFORMED_EVENT", "Webhook payload could not be processed", http.StatusBadRequest, err)

	case errors.Is(err, payment.ErrIllegalTransition):
		return apperrors.Conflict("ILLEGAL_TRANSITION", "Payment is already settled")

	case errors.Is(err, payment.ErrActivationFailure):
		return apperrors.NewAppError("ACTIVATION_FAILED", "Subscription activation failed", http.StatusInternalServerError, err)

	case errors.Is(err, payment.ErrProviderUnavailable):
		return apperrors.ServiceUnavailable("PROVIDER_UNAVAILABLE", "Payment provider not available")

	case errors.Is(err, payment.ErrRateLimited):
		return apperrors.RateLimited("Too many payment attempts")

	case errors.Is(err, payment.ErrPlanUnavailable):
		return apperrors.Unprocessable("PLAN_UNAVAILABLE", "Plan is not available")

	// Another user's intent is reported as missing so ids cannot be probed.
	case errors.Is(err, payment.ErrIntentNotFound), errors.Is(err, payment.ErrForbidden):
		return apperrors.NotFound("payment intent")

	case errors.Is(err, subscription.ErrEntitlementNotFound):
		return apperrors.NotFound("subscription")

	default:
		return apperrors.Internal(err)
	}
}

// handleError writes the mapped error and records the cause for the access log.
func handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

// parseIntentID parses the :id path parameter.
func parseIntentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		appErr := apperrors.BadRequest("Invalid intent id")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return uuid.Nil, false
	}
	return id, true
}
